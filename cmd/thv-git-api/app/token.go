package app

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/thv-git-api/internal/auth"
	"github.com/stacklok/thv-git-api/internal/config"
)

func newTokenCmd(v *viper.Viper) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a configured user",
		Long: `Issue a bearer token for one of the users of the configuration file.

The token is signed with the same secret and lifetime as tokens returned by
GET /user/sign-in, so it requires auth mode "jwt". It is printed to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := cmd.Flags().GetString("user")
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			token, err := issueToken(cfg.GetAuth(), user)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	tokenCmd.Flags().String("user", "", "ID of the user to issue the token for")
	_ = tokenCmd.MarkFlagRequired("user")

	return tokenCmd
}

// issueToken signs a token for the configured user with id userID
func issueToken(cfg *config.AuthConfig, userID string) (string, error) {
	if cfg.GetMode() != config.AuthModeJWT {
		return "", fmt.Errorf("tokens require auth mode %q, configured mode is %q", config.AuthModeJWT, cfg.GetMode())
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	known := false
	for _, u := range cfg.Users {
		if configured, err := uuid.Parse(u.ID); err == nil && configured == id {
			known = true
			break
		}
	}
	if !known {
		return "", fmt.Errorf("user %s is not configured", id)
	}

	secret, err := cfg.GetSecret()
	if err != nil {
		return "", err
	}
	signer, err := auth.NewSigner(secret, cfg.GetTokenLifetime())
	if err != nil {
		return "", err
	}
	return signer.Issue(id)
}
