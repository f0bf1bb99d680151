package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/drawbridge-app/drawbridge/internal/config"
	"github.com/drawbridge-app/drawbridge/internal/relay"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	ConfigPath string
	Secret     string
	TTL        time.Duration
}

// NewTokenCommand creates the token command. It mints a signed
// connection token for a user, either from the config file's secret or
// from an explicit --secret.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a connection token",
		Long: `Mint a signed token the websocket endpoint accepts for the
given user id.

Example:
  drawbridge token user-a --config ./drawbridge.yaml
  drawbridge token user-a --secret dev-secret --ttl 1h`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "signing secret (overrides config)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", config.DefaultTokenTTL, "token lifetime")

	return cmd
}

func runToken(opts *TokenOptions, userID string, cmd *cobra.Command) error {
	secret := opts.Secret
	ttl := opts.TTL

	if secret == "" {
		if opts.ConfigPath == "" {
			return WrapExitError(ExitCommandError, "either --secret or --config is required", nil)
		}
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		secret = cfg.TokenSecret
		if !cmd.Flags().Changed("ttl") {
			ttl = time.Duration(cfg.TokenTTL)
		}
	}

	auth := relay.NewTokenAuth(secret, ttl)
	fmt.Fprintln(cmd.OutOrStdout(), auth.Mint(userID))
	return nil
}
