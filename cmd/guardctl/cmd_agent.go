package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/xela07ax/crisisguard-client/internal/domain"
)

func newStatusCmd(g *globals) *cobra.Command {
	var channelOnly bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show agent status and control channel state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return wrap("status", err)
			}
			ch, err := c.do(cmd.Context(), http.MethodGet, "/v1/channel", nil, nil)
			if err != nil {
				return wrap("status", err)
			}
			if channelOnly {
				return printJSON(cmd.OutOrStdout(), ch)
			}
			agent, err := c.do(cmd.Context(), http.MethodGet, "/v1/agent/status", nil, nil)
			if err != nil {
				return wrap("status", err)
			}
			out, err := json.Marshal(map[string]json.RawMessage{"channel": ch, "agent": agent})
			if err != nil {
				return wrap("status", err)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&channelOnly, "channel", false, "show only the control channel state")
	return cmd
}

func newPushConfigCmd(g *globals) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "push-config",
		Short: "Push detector thresholds to the agent",
		Long:  "Sends rate thresholds to the agent through the daemon.\nWithout --file the thresholds from the config file (agent.rates) are used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rates domain.RateConfig
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return wrap("push-config", err)
				}
				dec := json.NewDecoder(bytes.NewReader(data))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&rates); err != nil {
					return wrap("push-config", err)
				}
			} else {
				cfg, err := g.config()
				if err != nil {
					return wrap("push-config", err)
				}
				rates = cfg.Agent.Rates
			}

			c, err := g.client()
			if err != nil {
				return wrap("push-config", err)
			}
			ack, err := c.do(cmd.Context(), http.MethodPost, "/v1/agent/config", nil, rates)
			if err != nil {
				return wrap("push-config", err)
			}
			return printJSON(cmd.OutOrStdout(), ack)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with thresholds (agent keys, e.g. TIME_WINDOW_SECONDS)")
	return cmd
}
