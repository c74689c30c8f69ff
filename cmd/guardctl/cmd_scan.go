package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xela07ax/crisisguard-client/internal/domain"
)

func newScanCmd(g *globals) *cobra.Command {
	var (
		file     string
		showHTML bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "scan [url]",
		Short: "Scan a page for malicious and insecure links",
		Long:  "Without --file the daemon fetches the page itself.\nWith --file the local HTML is sent and url (optional) is used to resolve relative links.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pageURL string
			if len(args) == 1 {
				pageURL = args[0]
			}
			if pageURL == "" && file == "" {
				return fmt.Errorf("scan: url or --file required")
			}

			var body any
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return wrap("scan", err)
				}
				body = data
			}

			c, err := g.client()
			if err != nil {
				return wrap("scan", err)
			}
			query := map[string]string{}
			if pageURL != "" {
				query["url"] = pageURL
			}
			raw, err := c.do(cmd.Context(), http.MethodPost, "/v1/pages/scan", query, body)
			if err != nil {
				return wrap("scan", err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), raw)
			}

			var report domain.PageReport
			if err := json.Unmarshal(raw, &report); err != nil {
				return wrap("scan", err)
			}
			if showHTML {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), report.HTML)
				return err
			}
			return printReport(cmd, &report)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "local HTML file to scan")
	f.BoolVar(&showHTML, "html", false, "print the page HTML with risky links disabled")
	f.BoolVar(&asJSON, "json", false, "print the raw report")
	return cmd
}

func printReport(cmd *cobra.Command, r *domain.PageReport) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scan %s: %d links\n", r.ScanID, len(r.Links))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERDICT\tURL")
	disabled := 0
	for _, l := range r.Links {
		if l.Verdict.Disables() {
			disabled++
		}
		fmt.Fprintf(tw, "%s\t%s\n", l.Verdict, l.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d disabled\n", disabled)
	return nil
}
