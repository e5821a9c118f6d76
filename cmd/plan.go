package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/regionstat/internal/region"
	"github.com/sells-group/regionstat/internal/sampling"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the sample grid for each region without fetching",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("plan"); err != nil {
			return err
		}

		file, _ := cmd.Flags().GetString("file")
		asJSON, _ := cmd.Flags().GetBool("json")

		regions, err := loadRegionFile(file, region.NewRegistry(cfg.DataSources...))
		if err != nil {
			return err
		}

		planner := sampling.NewPlanner(sampling.WithSeed(cfg.Sampling.Seed))
		plans := make([]regionPlan, 0, len(regions))
		for _, r := range regions {
			plans = append(plans, regionPlan{RegionID: r.ID, Plan: planner.Generate(r.Points)})
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(plans)
		}
		formatPlans(os.Stdout, plans)
		return nil
	},
}

type regionPlan struct {
	RegionID string `json:"region_id"`
	sampling.Plan
}

// formatPlans writes a tabular summary of sample plans to out.
func formatPlans(out io.Writer, plans []regionPlan) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REGION\tAREA_KM2\tGRID\tCANDIDATES\tPOINTS\tFALLBACK")
	for _, p := range plans {
		fallback := string(p.Fallback)
		if fallback == "" {
			fallback = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%dx%d\t%d\t%d\t%s\n",
			p.RegionID, p.AreaKm2, p.Resolution, p.Resolution, p.Candidates, len(p.Points), fallback)
	}
	_ = w.Flush()
}

func init() {
	planCmd.Flags().String("file", "", "YAML file describing the regions")
	_ = planCmd.MarkFlagRequired("file")
	planCmd.Flags().Bool("json", false, "print the plans, including points, as JSON")
	rootCmd.AddCommand(planCmd)
}
