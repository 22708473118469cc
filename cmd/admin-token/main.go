package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/members-only/backend/internal/auth"
	"github.com/members-only/backend/internal/config"
	"github.com/members-only/backend/internal/rbac"
	"github.com/spf13/cobra"
)

var (
	fid  int64
	role string
	ttl  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Mint a bearer token for the admin API",
	Long: `Signs a JWT with JWT_SECRET for the given fid. Admin tokens are only
accepted while the fid is listed in ADMIN_FIDS.`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().Int64Var(&fid, "fid", 0, "farcaster id the token is issued to")
	rootCmd.Flags().StringVar(&role, "role", rbac.RoleAdmin, "token role (admin|lead)")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_EXPIRATION_HOURS)")
	_ = rootCmd.MarkFlagRequired("fid")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()

	if _, ok := rbac.RolePermissions[role]; !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	if role == rbac.RoleAdmin && !cfg.IsAdmin(fid) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: fid %d is not in ADMIN_FIDS, the API will reject this token\n", fid)
	}
	if ttl <= 0 {
		ttl = cfg.JWTExpiration
	}

	token, err := auth.GenerateJWT(cfg.JWTSecret, fid, role, ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "%s token for fid %d, expires %s\n", role, fid, humanize.Time(time.Now().Add(ttl)))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
