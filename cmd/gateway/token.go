package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MOHCentral/opm-stats-gateway/internal/auth"
	"github.com/MOHCentral/opm-stats-gateway/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage server tokens",
}

var tokenSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Issue a signed server token (jwt auth mode)",
	RunE:  runTokenSign,
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new server token (postgres auth mode)",
	RunE:  runTokenCreate,
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a server token (postgres auth mode)",
	RunE:  runTokenRevoke,
}

var (
	tokenServerID string
	tokenName     string
	tokenTTL      time.Duration
	tokenValue    string
)

func init() {
	tokenSignCmd.Flags().StringVar(&tokenServerID, "server-id", "", "server identity to embed")
	tokenSignCmd.Flags().DurationVar(&tokenTTL, "ttl", 365*24*time.Hour, "token lifetime")
	tokenSignCmd.MarkFlagRequired("server-id")

	tokenCreateCmd.Flags().StringVar(&tokenServerID, "server-id", "", "server identity for the token")
	tokenCreateCmd.Flags().StringVar(&tokenName, "name", "", "operator label for the token")
	tokenCreateCmd.MarkFlagRequired("server-id")

	tokenRevokeCmd.Flags().StringVar(&tokenValue, "token", "", "token to revoke")
	tokenRevokeCmd.MarkFlagRequired("token")

	tokenCmd.AddCommand(tokenSignCmd, tokenCreateCmd, tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenSign(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}

	token, err := auth.NewJWTResolver(cfg.Auth.JWTSecret).Sign(tokenServerID, tokenTTL)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Println(token)
	return nil
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	store, err := tokenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(raw)

	if err := store.CreateToken(context.Background(), token, tokenServerID, tokenName); err != nil {
		return err
	}

	// The raw token is only available here; the store keeps a digest.
	fmt.Println(token)
	return nil
}

func runTokenRevoke(cmd *cobra.Command, args []string) error {
	store, err := tokenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return store.RevokeToken(context.Background(), tokenValue)
}

func tokenStore() (*auth.PostgresStore, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Auth.PostgresURL == "" {
		return nil, fmt.Errorf("auth.postgres_url is not configured")
	}
	return auth.NewPostgresStore(context.Background(), cfg.Auth.PostgresURL)
}
