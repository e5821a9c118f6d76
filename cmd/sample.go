package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/regionstat/internal/refresh"
	"github.com/sells-group/regionstat/internal/region"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Run one refresh cycle for the regions in a file",
	Long:  "Loads regions from a YAML file, samples and fetches every region with a data source, and prints the aggregated value, label and color per region.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("sample"); err != nil {
			return err
		}

		file, _ := cmd.Flags().GetString("file")
		asJSON, _ := cmd.Flags().GetBool("json")
		noJournal, _ := cmd.Flags().GetBool("no-journal")

		env, err := initEngine(ctx, cfg, !noJournal)
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := loadRegionFile(file, env.Registry); err != nil {
			return err
		}

		var report *refresh.Report
		if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
			w := env.Orchestrator.Window()
			if cmd.Flags().Changed("start") {
				w.Start, _ = cmd.Flags().GetFloat64("start")
			}
			if cmd.Flags().Changed("end") {
				w.End, _ = cmd.Flags().GetFloat64("end")
			}
			report, err = env.Orchestrator.Handle(ctx, refresh.SetTimeWindowCommand{Window: w})
		} else {
			report, err = env.Orchestrator.Handle(ctx, refresh.RefreshCommand{})
		}
		if err != nil {
			return eris.Wrap(err, "sample")
		}

		regions := env.Registry.List()
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Report  *refresh.Report `json:"report"`
				Regions []region.Region `json:"regions"`
			}{report, regions})
		}

		formatRegions(os.Stdout, regions, report)
		return nil
	},
}

// formatRegions writes one row per region with its result or failure reason.
func formatRegions(out io.Writer, regions []region.Region, report *refresh.Report) {
	reasons := make(map[string]string, len(report.Outcomes))
	for _, o := range report.Outcomes {
		if !o.OK {
			reasons[o.RegionID] = o.Reason
		}
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REGION\tDATA_SOURCE\tVALUE\tQUALITY\tCOLOR\tLABEL")
	for _, r := range regions {
		ds := r.DataSource
		if ds == "" {
			ds = "-"
		}
		if !r.HasValue() {
			reason := reasons[r.ID]
			if reason == "" {
				reason = "no value"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t(%s)\n", r.ID, ds, reason)
			continue
		}
		quality := "-"
		if r.Metadata != nil {
			quality = fmt.Sprintf("%.0f%% (%d/%d)", r.Metadata.QualityPercent, r.Metadata.SampleCount, r.Metadata.TotalRequested)
		}
		color := r.Color
		if color == "" {
			color = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\t%s\n", r.ID, ds, *r.Value, quality, color, r.Label)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d selected, %d succeeded, %d failed\n", report.Selected, report.Succeeded(), report.Failed())
}

func init() {
	sampleCmd.Flags().String("file", "", "YAML file describing the regions")
	_ = sampleCmd.MarkFlagRequired("file")
	sampleCmd.Flags().Float64("start", 0, "window start in hours from now (default from config)")
	sampleCmd.Flags().Float64("end", 0, "window end in hours from now (default from config)")
	sampleCmd.Flags().Bool("json", false, "print the report and regions as JSON")
	sampleCmd.Flags().Bool("no-journal", false, "skip writing the cycle to the journal")
	rootCmd.AddCommand(sampleCmd)
}
