package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/japi/internal/web/auth"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		user  string
		roles []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for development",
		Long: `Issue a signed bearer token with the configured auth.jwt_secret.

  japi token --user u1 --roles admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Auth.Enabled() {
				return errors.New("auth.jwt_secret is not configured")
			}

			tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(user, roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "user id the token is issued for")
	cmd.Flags().StringSliceVarP(&roles, "roles", "r", nil, "comma separated roles")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
