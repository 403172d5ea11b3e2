package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ghfetch/ghfetch/internal/store"
)

var (
	historyLimit int
	historyID    int64
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded download runs",
		Long: `Show download runs recorded in the local history database, newest first,
with attempt counts, the mirror used, transferred bytes, and final status.
With --id, show one run in full including its per-attempt outcomes.`,
		Example: `  ghfetch history
  ghfetch history --limit 50
  ghfetch history --id 12`,
		RunE: historyRun,
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to show")
	cmd.Flags().Int64Var(&historyID, "id", 0, "show per-attempt detail for one run")

	return cmd
}

func historyRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if globalCfg.History.DBPath == "" {
		return fmt.Errorf("history is disabled (no db_path configured)")
	}

	st, err := store.New(globalCfg.History.DBPath, logger)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer st.Close()

	if historyID > 0 {
		return historyDetail(st)
	}

	runs, err := st.ListDownloadRuns(historyLimit)
	if err != nil {
		return fmt.Errorf("listing download runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("no download runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tSTATUS\tATTEMPTS\tSIZE\tVIA\tURL")
	for _, run := range runs {
		via := run.LastMirror
		if via == "" {
			via = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			run.ID,
			humanize.Time(run.StartTime),
			run.Status,
			run.Attempts,
			humanize.Bytes(uint64(run.Bytes)),
			via,
			run.URL,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	total, err := st.CountDownloadRuns()
	if err != nil {
		return fmt.Errorf("counting download runs: %w", err)
	}
	if total > len(runs) {
		fmt.Printf("showing %d of %d runs, use --limit to see more\n", len(runs), total)
	}
	return nil
}

// historyDetail prints one run with its per-attempt outcomes.
func historyDetail(st *store.Store) error {
	run, err := st.GetDownloadRun(historyID)
	if err != nil {
		return err
	}
	attempts, err := st.ListDownloadAttempts(run.ID)
	if err != nil {
		return fmt.Errorf("listing attempts: %w", err)
	}

	fmt.Printf("run %d: %s\n", run.ID, run.URL)
	fmt.Printf("  output:  %s\n", run.OutputPath)
	fmt.Printf("  status:  %s\n", run.Status)
	fmt.Printf("  started: %s\n", humanize.Time(run.StartTime))
	fmt.Printf("  size:    %s\n", humanize.Bytes(uint64(run.Bytes)))
	if run.ErrorMessage != "" {
		fmt.Printf("  error:   %s\n", run.ErrorMessage)
	}

	if len(attempts) == 0 {
		fmt.Println("no attempts recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ATTEMPT\tVIA\tOUTCOME\tDETAIL")
	for _, att := range attempts {
		detail := att.Detail
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", att.Number, att.Mirror, att.Outcome, detail)
	}
	return w.Flush()
}
