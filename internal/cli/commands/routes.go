package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/japi/internal/blog"
	"github.com/conduit-lang/japi/internal/cli/ui"
)

func newRoutesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the JSON:API endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			// the routes only depend on the declared types
			a, err := newAPI(cfg, blog.Wrap(nil, cfg.Database.Driver), zap.NewNop())
			if err != nil {
				return err
			}

			table := ui.NewTable(cmd.OutOrStdout(), "METHOD", "PATH", "TYPE", "OPERATION")
			table.Colorize = func(col int, cell string) string {
				if col == 0 {
					return ui.MethodColor(cell).Sprint(cell)
				}
				return cell
			}
			for _, r := range a.Routes() {
				table.AddRow(r.Method, r.Pattern, r.Type, r.Operation.String())
			}
			table.Render()
			return nil
		},
	}
}
