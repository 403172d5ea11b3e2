package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var mirrorsProbe bool

func newMirrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirrors",
		Short: "List configured mirror proxies",
		Long: `List the configured mirror proxies in registry order. With --probe, each
mirror base is probed with a HEAD request and results are sorted by latency,
unreachable mirrors last.`,
		Example: `  ghfetch mirrors
  ghfetch mirrors --probe`,
		RunE: mirrorsRun,
	}

	cmd.Flags().BoolVar(&mirrorsProbe, "probe", false, "probe mirror latency")

	return cmd
}

func mirrorsRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	registry, err := globalCfg.Registry()
	if err != nil {
		return fmt.Errorf("invalid mirror configuration: %w", err)
	}

	if registry.Len() == 0 {
		fmt.Println("no mirrors configured, all downloads go direct")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	if !mirrorsProbe {
		fmt.Fprintln(w, "MODE\tBASE URL")
		for _, e := range registry.Entries() {
			fmt.Fprintf(w, "%s\t%s\n", e.Mode, e.BaseURL)
		}
		return w.Flush()
	}

	results := registry.Probe(cmd.Context(), nil)
	fmt.Fprintln(w, "MODE\tBASE URL\tLATENCY\tSTATUS")
	for _, r := range results {
		status := "ok"
		if r.Error != "" {
			status = r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%dms\t%s\n", r.Mode, r.BaseURL, r.LatencyMs, status)
	}
	return w.Flush()
}
