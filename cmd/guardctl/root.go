package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xela07ax/crisisguard-client/internal/infra"
)

// globals — общие флаги; конфиг читается лениво, только если флаг не задан.
type globals struct {
	configPath string
	console    string
	apiKey     string
	token      string

	cfg *infra.Config
}

func (g *globals) config() (*infra.Config, error) {
	if g.cfg != nil {
		return g.cfg, nil
	}
	cfg, err := infra.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	g.cfg = cfg
	return cfg, nil
}

func (g *globals) client() (*consoleClient, error) {
	addr := g.console
	if addr == "" {
		cfg, err := g.config()
		if err != nil {
			return nil, err
		}
		addr = cfg.Console.Addr
	}
	return newConsoleClient(addr, g.apiKey, g.token), nil
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "guardctl",
		Short:         "CrisisGuard client control tool",
		Long:          "guardctl talks to the local crisisguard daemon console API.\nIt reads alerts, pushes detector thresholds and scans pages for risky links.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&g.configPath, "config", "", "path to config file")
	f.StringVar(&g.console, "console", "", "console API address (default from config)")
	f.StringVar(&g.apiKey, "api-key", os.Getenv("CRISISGUARD_API_KEY"), "console API key")
	f.StringVar(&g.token, "token", os.Getenv("CRISISGUARD_TOKEN"), "console bearer token")

	cmd.AddCommand(
		newStatusCmd(g),
		newPushConfigCmd(g),
		newLastAlertCmd(g),
		newScanCmd(g),
		newJournalCmd(g),
		newWatchCmd(g),
		newTokenCmd(g),
		newHashKeyCmd(),
	)
	return cmd
}

func wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
