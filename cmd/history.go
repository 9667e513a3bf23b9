package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/database"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show saved roll calls",
	Long: `List the roll calls recorded in PostgreSQL, newest first, or show the
rows of a single run. Requires DATABASE_URL.

Examples:
  rollcall history
  rollcall history --limit 5
  rollcall history 3f1c2a4e-6b0d-4c4b-9a57-0c2d5f1e8b71`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 20, "Number of runs to list")
	historyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireHistory(); err != nil {
		return err
	}

	if len(args) == 1 {
		run, err := a.history.GetRun(ctx, args[0])
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("attendance run %s not found", args[0])
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(run)
		}
		printRun(run)
		return nil
	}

	runs, err := a.history.ListRuns(ctx, mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}
	if jsonOutput {
		if runs == nil {
			runs = []database.AttendanceRun{}
		}
		return outputJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No attendance recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tPRESENT\tABSENT\tTOLERANCE\tFILE")
	fmt.Fprintln(w, "--\t----\t-------\t------\t---------\t----")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%g\t%s\n", run.ID, run.Date, run.Present, run.Absent, run.Tolerance, run.File)
	}
	w.Flush()
	return nil
}

func printRun(run *database.AttendanceRun) {
	fmt.Printf("Run:       %s\n", run.ID)
	fmt.Printf("Date:      %s\n", run.Date)
	fmt.Printf("Saved:     %s\n", run.CreatedAt.Local().Format(time.DateTime))
	fmt.Printf("File:      %s\n", run.File)
	fmt.Printf("Tolerance: %g\n", run.Tolerance)
	fmt.Printf("Present:   %d / %d\n\n", run.Present, run.Present+run.Absent)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLL NUMBER\tATTENDANCE")
	fmt.Fprintln(w, "-----------\t----------")
	for _, r := range run.Rows {
		fmt.Fprintf(w, "%s\t%s\n", r.Identifier, r.Status)
	}
	w.Flush()
}
