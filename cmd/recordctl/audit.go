package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/repository"
)

var flagDays int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit ledger",
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show daily counts, top actors and action distribution",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		stats, err := repository.NewAuditRepo(db).Statistics(cmd.Context(), flagDays)
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), stats, flagJSON)
	},
}

func init() {
	auditStatsCmd.Flags().IntVar(&flagDays, "days", 7, "window in days")
	auditCmd.AddCommand(auditStatsCmd)
}

func printStats(w io.Writer, s *model.AuditStatistics, asJSON bool) error {
	if asJSON {
		out, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal statistics: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "last %d days\n\nDAY\tENTRIES\n", s.Days)
	for _, d := range s.DailyCounts {
		fmt.Fprintf(tw, "%s\t%d\n", d.Day, d.Count)
	}
	fmt.Fprintln(tw, "\nACTOR\tENTRIES")
	for _, a := range s.TopActors {
		fmt.Fprintf(tw, "%s\t%d\n", a.Actor, a.Count)
	}
	fmt.Fprintln(tw, "\nACTION\tENTRIES")
	for action, n := range s.ActionDistribution {
		fmt.Fprintf(tw, "%s\t%d\n", action, n)
	}
	return tw.Flush()
}
