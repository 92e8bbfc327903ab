package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func withoutColor(t *testing.T) {
	t.Helper()
	old := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = old })
}

func TestTable_Render(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	table := NewTable(&buf, "METHOD", "PATH")
	table.AddRow("GET", "/posts")
	table.AddRow("DELETE", "/posts/{id}", "ignored")
	table.AddRow("POST")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"METHOD  PATH",
		"GET     /posts",
		"DELETE  /posts/{id}",
		"POST",
	}, lines)
}

func TestTable_Colorize(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	table := NewTable(&buf, "A")
	table.Colorize = func(_ int, cell string) string { return "[" + cell + "]" }
	table.AddRow("x")
	table.Render()
	assert.Contains(t, buf.String(), "[x]")
}

func TestTable_NoHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf).Render()
	assert.Empty(t, buf.String())
}

func TestStatusLines(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	Success(&buf, "applied %d migrations", 2)
	Info(&buf, "listening")
	Failure(&buf, errors.New("boom"))

	assert.Equal(t, "✓ applied 2 migrations\nlistening\nError: boom\n", buf.String())
}

func TestMethodColor(t *testing.T) {
	for _, m := range []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"} {
		assert.NotNil(t, MethodColor(m))
	}
}
