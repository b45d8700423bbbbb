package main

import (
	"fmt"
	"time"

	"github.com/smartyellow/services/adapters/auth"
	"github.com/smartyellow/services/config"
	"github.com/smartyellow/services/entities"
	"github.com/smartyellow/services/ports"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for development",
	Long: `Mint a bearer token signed with auth.jwt_secret.

Features are given by their short name and qualified with the plugin id.

Examples:
  services token --user u1 --feature seeMyServices --feature editServices
  services token --user admin --all --expires 1h`,
	RunE: runToken,
}

var (
	tokenUser      string
	tokenCoworkers []string
	tokenFeatures  []string
	tokenAll       bool
	tokenExpires   time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenUser, "user", "dev", "user id")
	tokenCmd.Flags().StringSliceVar(&tokenCoworkers, "coworker", nil, "coworker user ids")
	tokenCmd.Flags().StringSliceVar(&tokenFeatures, "feature", nil, "features to grant")
	tokenCmd.Flags().BoolVar(&tokenAll, "all", false, "grant every feature of the plugin")
	tokenCmd.Flags().DurationVar(&tokenExpires, "expires", 0, "token lifetime (default auth.token_expiration)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not set, the server would not accept the token")
	}

	manifest, err := entities.Manifest()
	if err != nil {
		return err
	}

	names := tokenFeatures
	if tokenAll {
		names = nil
		for _, f := range manifest.Features {
			names = append(names, f.Name)
		}
	}
	features := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := manifest.Feature(n); !ok {
			return fmt.Errorf("unknown feature %q", n)
		}
		features = append(features, manifest.Qualified(n))
	}

	expires := tokenExpires
	if expires == 0 {
		expires = cfg.Auth.TokenExpiration
	}
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, expires)
	token, exp, err := tokens.GenerateToken(ports.User{ID: tokenUser, Coworkers: tokenCoworkers, Features: features})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
	return nil
}
