package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/alerts"
	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/infra"
	"github.com/xela07ax/crisisguard-client/internal/repository/redisstore"
)

func newLastAlertCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "last-alert",
		Short: "Show the most recent ransomware alert",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return wrap("last-alert", err)
			}
			raw, err := c.do(cmd.Context(), http.MethodGet, "/v1/alerts/last", nil, nil)
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
				fmt.Fprintln(cmd.OutOrStdout(), "No alerts yet")
				return nil
			}
			if err != nil {
				return wrap("last-alert", err)
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func newJournalCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent verdicts, alerts and config pushes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return wrap("journal", err)
			}
			raw, err := c.do(cmd.Context(), http.MethodGet, "/v1/journal", map[string]string{"limit": strconv.Itoa(limit)}, nil)
			if err != nil {
				return wrap("journal", err)
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of events")
	return cmd
}

// newWatchCmd подписывается на тревоги в Redis (storage.driver=redis).
func newWatchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream alerts as the daemon stores them (redis storage only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config()
			if err != nil {
				return wrap("watch", err)
			}
			if cfg.Storage.Driver != "redis" {
				return fmt.Errorf("watch: requires storage.driver=redis, got %q", cfg.Storage.Driver)
			}
			logger := infra.MustLogger(cfg.Logger)
			rdb := redisstore.NewClient(cfg.Storage.Redis)
			defer rdb.Close()

			store, err := redisstore.NewStore(cmd.Context(), rdb)
			if err != nil {
				return wrap("watch", err)
			}
			watchAlerts(cmd.Context(), cmd.OutOrStdout(), store, logger)
			return nil
		},
	}
}

// watchAlerts печатает тревоги до отмены ctx. После каждой переподписки
// показывает слот, если в нем тревога, которой еще не было на экране.
func watchAlerts(ctx context.Context, w io.Writer, store *redisstore.Store, logger *zap.Logger) {
	var lastShown string
	show := func(a domain.Alert) {
		lastShown = string(a.RawPayload)
		fmt.Fprintf(w, "%s  %s\n", a.ReceivedAt.Local().Format("2006-01-02 15:04:05"), alerts.FormatBody(a))
	}

	redisstore.ListenResilient(ctx, store.Client(), logger, infra.RedisChanAlerts,
		func(ctx context.Context) error {
			a, err := store.LastAlert(ctx)
			if err != nil || a == nil {
				return err
			}
			if string(a.RawPayload) != lastShown {
				show(*a)
			}
			return nil
		},
		func(payload string) {
			show(domain.NewAlert(json.RawMessage(payload), time.Now()))
		},
	)
}
