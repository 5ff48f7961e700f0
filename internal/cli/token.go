// ABOUTME: token subcommand for smsrelay-admin
// ABOUTME: Mints bearer tokens for the relay's REST API from the configured secret

package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/smsrelay/internal/auth"
)

// TokenView is the JSON shape of a minted token.
type TokenView struct {
	Operator  string `json:"operator"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func newTokenCommand(opts *RootOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <operator>",
		Short: "Mint an API token for an operator",
		Long: `Mint an HS256 bearer token for the REST API, signed with auth.jwt_secret
from the config file. The operator name is recorded in the relay's logs for
every API call made with the token. --ttl 0 mints a token that never expires.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			view, err := mintToken(cfg.Auth.JWTSecret, args[0], ttl, time.Now())
			if err != nil {
				return err
			}
			f := opts.formatter(cmd.OutOrStdout())
			return f.Emit(view, func(w io.Writer) {
				fmt.Fprintln(w, view.Token)
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func mintToken(secret, operator string, ttl time.Duration, now time.Time) (TokenView, error) {
	if secret == "" {
		return TokenView{}, errors.New("auth.jwt_secret is not configured")
	}
	verifier, err := auth.NewJWTVerifier([]byte(secret))
	if err != nil {
		return TokenView{}, fmt.Errorf("creating verifier: %w", err)
	}
	token, err := verifier.Generate(operator, ttl)
	if err != nil {
		return TokenView{}, fmt.Errorf("generating token: %w", err)
	}
	view := TokenView{Operator: operator, Token: token}
	if ttl > 0 {
		view.ExpiresAt = now.Add(ttl).UTC().Format(time.RFC3339)
	}
	return view, nil
}
