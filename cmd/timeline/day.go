package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/timeline-engine/store/sqlite"
	"github.com/warp/timeline-engine/timeline"
)

var dayCmd = &cobra.Command{
	Use:   "day [YYYY-MM-DD]",
	Short: "Print a day's slices and totals",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDay,
}

func init() {
	dayCmd.Flags().String("db", "", "SQLite database path (overrides config)")
}

func runDay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Server.DB = db
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	date := time.Now().In(engineCfg.Location)
	if len(args) == 1 {
		day, err := timeline.ParseDay(args[0], engineCfg.Location)
		if err != nil {
			return err
		}
		date = day.Start
	}

	store, err := sqlite.New(cfg.Server.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	svc := timeline.NewService(store, engineCfg)
	slices, err := svc.Day(cmd.Context(), date)
	if err != nil {
		return err
	}
	summary, err := svc.Summarize(cmd.Context(), date)
	if err != nil {
		return err
	}

	return printDay(cmd.OutOrStdout(), summary, slices, engineCfg.Location)
}

func printDay(out io.Writer, summary timeline.DaySummary, slices []timeline.Slice, loc *time.Location) error {
	fmt.Fprintf(out, "%s\n\n", summary.Day)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tWORK ITEM\tNOTE")
	for _, s := range slices {
		end := "running"
		if s.End != nil {
			end = s.End.In(loc).Format("15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Start.In(loc).Format("15:04"), end, s.WorkItemID, s.Note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, t := range summary.ByWorkItem {
		fmt.Fprintf(tw, "%s\t%d\t%sh\n", t.WorkItemID, t.Slices, t.Hours.StringFixed(2))
	}
	fmt.Fprintf(tw, "total\t\t%sh\n", summary.Total.StringFixed(2))
	fmt.Fprintf(tw, "untracked\t\t%sh\n", summary.Untracked.StringFixed(2))
	return tw.Flush()
}
