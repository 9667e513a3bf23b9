package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/session"
)

var takeCmd = &cobra.Command{
	Use:   "take",
	Short: "Take attendance from a group photo",
	Long: `Load a roster, encode the reference portraits, detect the faces in a
group photo and write attendance_<date>.csv (or .xlsx).

Reference portraits are looked up as <identifier>.jpg, <identifier>.jpeg
and <identifier>.png in the references directory.

Examples:
  # Take attendance and save it to the current directory
  rollcall take --roster class.csv --references portraits/ --image group.jpg

  # Be stricter and write an Excel file somewhere else
  rollcall take --roster class.xlsx --references portraits/ --image group.jpg \
    --tolerance 0.45 --format xlsx --out ~/attendance

  # Only print the result
  rollcall take --roster class.csv --references portraits/ --image group.jpg --dry-run`,
	RunE: runTake,
}

func init() {
	rootCmd.AddCommand(takeCmd)

	takeCmd.Flags().String("roster", "", "Roster file (.csv or .xlsx)")
	takeCmd.Flags().String("references", "", "Directory with reference portraits")
	takeCmd.Flags().String("image", "", "Group photo")
	takeCmd.Flags().String("column", "", "Roster column holding identifiers (overrides ROSTER_COLUMN)")
	takeCmd.Flags().Float64("tolerance", 0, "Maximum face distance accepted as a match (overrides FACE_TOLERANCE)")
	takeCmd.Flags().String("metric", "", "Distance metric: euclidean or cosine (overrides FACE_METRIC)")
	takeCmd.Flags().String("out", "", "Directory for the attendance file (overrides ATTENDANCE_DIR)")
	takeCmd.Flags().String("format", "", "Attendance file format: csv or xlsx (overrides ATTENDANCE_FORMAT)")
	takeCmd.Flags().StringSlice("present", nil, "Identifiers to mark present regardless of the photo")
	takeCmd.Flags().Bool("dry-run", false, "Print attendance without saving")
	takeCmd.Flags().Bool("json", false, "Output as JSON")

	for _, name := range []string{"roster", "references", "image"} {
		_ = takeCmd.MarkFlagRequired(name)
	}
}

func runTake(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if v := mustGetString(cmd, "column"); v != "" {
		cfg.Roster.Column = v
	}
	if v := mustGetFloat64(cmd, "tolerance"); v > 0 {
		cfg.Face.Tolerance = v
	}
	if v := mustGetString(cmd, "metric"); v != "" {
		cfg.Face.Metric = v
	}
	if v := mustGetString(cmd, "out"); v != "" {
		cfg.Attendance.Dir = v
	}
	if v := mustGetString(cmd, "format"); v != "" {
		cfg.Attendance.Format = v
	}
	jsonOutput := mustGetBool(cmd, "json")
	dryRun := mustGetBool(cmd, "dry-run")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	progress := func(done, total int, id string) {
		if jsonOutput {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Encoding references"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionFullWidth(),
			)
		}
		bar.Add(1)
	}

	c, err := a.controller(progress)
	if err != nil {
		return err
	}

	steps := []func() session.Result{
		func() session.Result { return c.LoadRoster(mustGetString(cmd, "roster")) },
		func() session.Result { return c.LoadReferences(ctx, mustGetString(cmd, "references")) },
		func() session.Result { return c.ProcessImage(ctx, mustGetString(cmd, "image")) },
	}
	for _, id := range mustGetStringSlice(cmd, "present") {
		steps = append(steps, func() session.Result { return c.SetStatus(id, attendance.Present) })
	}
	if !dryRun {
		steps = append(steps, func() session.Result { return c.Save(ctx, time.Now()) })
	}

	var results []session.Result
	for _, step := range steps {
		res := step()
		results = append(results, res)
		if !jsonOutput {
			printResult(res)
		}
		if !res.OK() {
			return fmt.Errorf("%s failed: %w", res.Action, res.Err)
		}
	}

	snap := c.Snapshot()
	if jsonOutput {
		return outputJSON(struct {
			Results    []session.Result `json:"results"`
			Attendance session.Snapshot `json:"attendance"`
		}{results, snap})
	}

	fmt.Println()
	printAttendance(snap)
	return nil
}

func printResult(res session.Result) {
	if res.OK() {
		fmt.Println(res.Message)
	} else {
		fmt.Fprintln(os.Stderr, res.Message)
	}
	for _, note := range res.Notes {
		fmt.Printf("  - %s\n", note)
	}
}

func printAttendance(snap session.Snapshot) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLL NUMBER\tATTENDANCE")
	fmt.Fprintln(w, "-----------\t----------")
	for _, r := range snap.Records {
		fmt.Fprintf(w, "%s\t%s\n", r.ID, r.Status.Code())
	}
	w.Flush()

	fmt.Printf("\nPresent: %d, Absent: %d (faces: %d, references: %d, tolerance: %g)\n",
		snap.Present, snap.Absent, snap.Faces, snap.References, snap.Tolerance)
	if snap.LastSaved != "" {
		fmt.Printf("Saved to %s\n", snap.LastSaved)
	}
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
