package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xela07ax/crisisguard-client/internal/console/service"
	"github.com/xela07ax/crisisguard-client/internal/infra/auth"
)

func newTokenCmd(g *globals) *cobra.Command {
	var (
		keyPath string
		userID  string
		scopes  []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an RS256 bearer token for the console API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keyPath == "" {
				return fmt.Errorf("token: --key is required")
			}
			pem, err := os.ReadFile(keyPath)
			if err != nil {
				return wrap("token", err)
			}
			key, err := auth.ParseRSAPrivateKey(pem)
			if err != nil {
				return wrap("token", err)
			}
			signed, err := service.NewTokenService(key).Issue(userID, scopes, ttl)
			if err != nil {
				return wrap("token", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&keyPath, "key", "", "PEM file with the RSA private key")
	f.StringVar(&userID, "user", "ui", "user id written into the token")
	f.StringSliceVar(&scopes, "scope", []string{auth.ScopeAlertsRead, auth.ScopeAgentRead}, "granted scopes ('*' for all)")
	f.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print the bcrypt hash of an API key for console.api_key_hash",
		Long:  "Reads the key from the argument or, if absent, from the first line of stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return wrap("hash-key", err)
				}
				key = strings.TrimSpace(line)
			}
			if key == "" {
				return fmt.Errorf("hash-key: empty key")
			}
			hash, err := auth.HashAPIKey(key)
			if err != nil {
				return wrap("hash-key", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
