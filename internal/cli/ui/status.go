package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Success prints a green check line.
func Success(w io.Writer, format string, args ...any) {
	color.New(color.FgGreen, color.Bold).Fprint(w, "✓ ")
	fmt.Fprintf(w, format+"\n", args...)
}

// Info prints a cyan line.
func Info(w io.Writer, format string, args ...any) {
	color.New(color.FgCyan).Fprintf(w, format+"\n", args...)
}

// Failure prints a red error line.
func Failure(w io.Writer, err error) {
	color.New(color.FgRed, color.Bold).Fprintf(w, "Error: %v\n", err)
}
