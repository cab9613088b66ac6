package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/punchclock/internal/attendance"
)

var reportDate string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered people",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show today's status for one person",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the attendance summary for a day",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the raw attendance events for a day",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

func init() {
	summaryCmd.Flags().StringVar(&reportDate, "date", "", "day as YYYY-MM-DD (default today)")
	eventsCmd.Flags().StringVar(&reportDate, "date", "", "day as YYYY-MM-DD (default today)")
	rootCmd.AddCommand(listCmd, statusCmd, summaryCmd, eventsCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	reg, _, closeBackend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	ids := reg.List()
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No faces registered")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tREGISTERED")
	for _, id := range ids {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", id.ID, id.Name, id.RegisteredAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	_, ledger, closeBackend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	st := ledger.StatusToday(args[0], time.Now())
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], st.Label())
	return nil
}

func runSummary(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	_, ledger, closeBackend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	date, err := resolveDate(ledger)
	if err != nil {
		return err
	}
	return printSummary(cmd.OutOrStdout(), date, ledger.SummaryFor(date), ledger.Location())
}

func printSummary(w io.Writer, date string, rows []attendance.SummaryRow, loc *time.Location) error {
	fmt.Fprintf(w, "Attendance summary for %s\n", date)
	if len(rows) == 0 {
		fmt.Fprintln(w, "No attendance recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tENTRY\tEXIT\tDURATION")
	for _, r := range rows {
		entry, exit, dur := "-", "-", "-"
		if r.EntryAt != nil {
			entry = r.EntryAt.In(loc).Format(attendance.TimeLayout)
		}
		if r.ExitAt != nil {
			exit = r.ExitAt.In(loc).Format(attendance.TimeLayout)
		}
		if r.Duration != nil {
			dur = attendance.FormatDuration(*r.Duration)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Status.Label(), entry, exit, dur)
	}
	return tw.Flush()
}

func runEvents(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	_, ledger, closeBackend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	date, err := resolveDate(ledger)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tNAME\tDURATION")
	for _, ev := range ledger.Events(date) {
		dur := ev.DurationString
		if dur == "" {
			dur = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.Time, ev.Kind, ev.Name, dur)
	}
	return tw.Flush()
}

func resolveDate(ledger *attendance.Ledger) (string, error) {
	if reportDate == "" {
		return ledger.Day(time.Now()), nil
	}
	if _, err := time.Parse(attendance.DateLayout, reportDate); err != nil {
		return "", fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return reportDate, nil
}
