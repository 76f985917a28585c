package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"seqnum/internal/domain/auth"
)

// NewTokenCmd creates the "token" subcommand.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API access token",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
	cmd.Flags().StringSlice("role", []string{"reader"}, "Roles: reader | writer | admin")
	cmd.Flags().String("secret", os.Getenv("JWT_SECRET"), "Signing secret")
	cmd.Flags().Duration("ttl", auth.DefaultJWTConfig("").AccessTokenTTL, "Token lifetime")
	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		return exitError(exitValidation, "--secret (or JWT_SECRET) is required")
	}
	roles, _ := cmd.Flags().GetStringSlice("role")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	cfg := auth.DefaultJWTConfig(secret)
	cfg.AccessTokenTTL = ttl
	token, _, err := auth.NewJWTService(cfg).GenerateAccessToken(args[0], roles)
	if err != nil {
		return exitError(exitRuntime, "%s", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
