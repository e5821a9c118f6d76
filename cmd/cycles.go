package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/regionstat/internal/monitoring"
	"github.com/sells-group/regionstat/internal/store"
)

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Inspect refresh cycle history",
	Long:  "Commands for listing and viewing journaled refresh cycles.",
}

// -- cycles list --

var cyclesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List refresh cycles, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cycles"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		cycles, err := st.ListCycles(ctx, store.CycleFilter{Limit: limit, Offset: offset})
		if err != nil {
			return eris.Wrap(err, "cycles list")
		}

		if len(cycles) == 0 {
			fmt.Fprintln(os.Stderr, "No cycles found.")
			return nil
		}

		formatCyclesList(os.Stdout, cycles)
		return nil
	},
}

// -- cycles show --

var cyclesShowCmd = &cobra.Command{
	Use:   "show <cycle-id>",
	Short: "Show a cycle with its per-region outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cycles"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		c, err := st.GetCycle(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "cycles show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	},
}

// -- cycles stats --

var cyclesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate refresh statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cycles"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since / time.Hour)
		if hours < 1 {
			hours = 1
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "cycles stats")
		}

		formatCycleStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	cyclesListCmd.Flags().Int("limit", 50, "max number of cycles to display")
	cyclesListCmd.Flags().Int("offset", 0, "number of cycles to skip")

	cyclesStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	cyclesCmd.AddCommand(cyclesListCmd)
	cyclesCmd.AddCommand(cyclesShowCmd)
	cyclesCmd.AddCommand(cyclesStatsCmd)
	rootCmd.AddCommand(cyclesCmd)
}

// formatCyclesList writes a tabular list of cycles to out.
func formatCyclesList(out io.Writer, cycles []store.CycleRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTRIGGER\tFORCE\tWINDOW\tSELECTED\tOK\tFAILED\tSTARTED\tDURATION")
	for _, c := range cycles {
		id := c.ID
		if len(id) > 8 {
			id = id[:8]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%g..%gh\t%d\t%d\t%d\t%s\t%s\n",
			id,
			c.Trigger,
			c.Force,
			c.WindowStart, c.WindowEnd,
			c.Selected,
			c.Succeeded,
			c.Failed,
			c.StartedAt.Format("2006-01-02 15:04"),
			c.FinishedAt.Sub(c.StartedAt).Round(time.Millisecond),
		)
	}
	_ = w.Flush()
}

// formatCycleStats writes aggregate stats to out.
func formatCycleStats(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Cycles:\t%d\n", s.Cycles)
	_, _ = fmt.Fprintf(w, "  Forced:\t%d\n", s.ForcedCycles)
	_, _ = fmt.Fprintf(w, "Regions selected:\t%d\n", s.RegionsSelected)
	_, _ = fmt.Fprintf(w, "  Succeeded:\t%d\n", s.RegionsSucceeded)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", s.RegionsFailed)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", s.FailRate*100)
	if s.AvgDurationMs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%s\n", time.Duration(s.AvgDurationMs)*time.Millisecond)
	}
	if s.Latest != nil {
		_, _ = fmt.Fprintf(w, "Latest cycle:\t%s (%s)\n", s.Latest.ID, s.Latest.StartedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
