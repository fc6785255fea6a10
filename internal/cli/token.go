package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/auth"
	"github.com/kilupskalvis/sitedoc/internal/config"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <caller>",
	Short: "Issue a caller token for the server",
	Long: `Sign a bearer token identifying caller, using the jwt_secret from the
workspace config or SITEDOC_JWT_SECRET.

Examples:
  sitedoc token alice
  sitedoc token alice --ttl 1h`,
	Args: cobra.ExactArgs(1),
	Run:  runToken,
}

var tokenTTL time.Duration

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}

func runToken(cmd *cobra.Command, args []string) {
	secret := os.Getenv(config.EnvPrefix + "JWT_SECRET")
	if secret == "" {
		cfg, err := config.LoadWorkspace()
		if err != nil {
			exitError("no jwt secret: set %sJWT_SECRET or run inside a workspace (%v)", config.EnvPrefix, err)
		}
		secret = cfg.JWTSecret
	}
	if secret == "" {
		exitError("jwt_secret is not configured")
	}

	tok, err := auth.IssueToken([]byte(secret), args[0], tokenTTL)
	if err != nil {
		exitError("failed to issue token: %v", err)
	}
	fmt.Println(tok)
}
