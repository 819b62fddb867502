package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/mathprepa/internal/config"
	"github.com/seantiz/mathprepa/internal/identity"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Issue an access token for a user",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.JWTSecret == "" {
				return errors.New("MATHPREPA_JWT_SECRET must be set")
			}
			// Issuing never consults the revocation list.
			auth := identity.NewAuthenticator(cfg.JWTSecret, nil, config.NewLogger(io.Discard, cfg.LogLevel))
			token, err := auth.Issue(userID, ttl)
			if err != nil {
				return err
			}
			return printToken(cmd.OutOrStdout(), rootOpts.Format, userID, token, ttl)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id to put in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printToken(w io.Writer, format, userID, token string, ttl time.Duration) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(map[string]string{
			"user_id":    userID,
			"token":      token,
			"expires_in": ttl.String(),
		})
	}
	_, err := fmt.Fprintln(w, token)
	return err
}
