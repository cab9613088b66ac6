package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/punchclock/internal/attendance"
	"github.com/your-org/punchclock/internal/report"
	"github.com/your-org/punchclock/internal/storage"
)

var reportsDate string

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List or print the daily reports kept by the worker",
	Long: `Without --date, lists the days that have a report in object storage.
With --date, prints that day's report as JSON.`,
	Args: cobra.NoArgs,
	RunE: runReports,
}

func init() {
	reportsCmd.Flags().StringVar(&reportsDate, "date", "", "print the report for YYYY-MM-DD")
	rootCmd.AddCommand(reportsCmd)
}

func runReports(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if cfg.MinIO.Endpoint == "" {
		return fmt.Errorf("reports need minio.endpoint to be configured")
	}
	store, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return err
	}

	if reportsDate != "" {
		if _, err := time.Parse(attendance.DateLayout, reportsDate); err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		data, err := store.GetObject(ctx, report.Key(reportsDate))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	keys, err := store.ListObjects(ctx, report.Prefix)
	if err != nil {
		return err
	}
	dates := report.Dates(keys)
	if len(dates) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No reports stored")
		return nil
	}
	for _, d := range dates {
		fmt.Fprintln(cmd.OutOrStdout(), d)
	}
	return nil
}
