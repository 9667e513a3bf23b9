package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/reference"
	"github.com/kozaktomas/rollcall/internal/roster"
)

var referencesCmd = &cobra.Command{
	Use:   "references",
	Short: "Check reference portraits for a roster",
	Long: `Encode the reference portrait of every roster identifier and report
the ones that are missing, unreadable or have no detectable face.

With DATABASE_URL set, computed descriptors are cached so later roll calls
skip unchanged portraits.

Examples:
  rollcall references --roster class.csv --dir portraits/`,
	RunE: runReferences,
}

func init() {
	rootCmd.AddCommand(referencesCmd)

	referencesCmd.Flags().String("roster", "", "Roster file (.csv or .xlsx)")
	referencesCmd.Flags().String("dir", "", "Directory with reference portraits")
	referencesCmd.Flags().String("column", "", "Roster column holding identifiers (overrides ROSTER_COLUMN)")
	referencesCmd.Flags().Bool("json", false, "Output as JSON")
	_ = referencesCmd.MarkFlagRequired("roster")
	_ = referencesCmd.MarkFlagRequired("dir")
}

type referenceFailureOutput struct {
	ID    string `json:"id"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error"`
}

type referencesOutput struct {
	Roster    int                      `json:"roster"`
	Encoded   []string                 `json:"encoded"`
	Cached    int                      `json:"cached"`
	CacheSize *int                     `json:"cache_size,omitempty"`
	Skipped   []string                 `json:"skipped"`
	Failures  []referenceFailureOutput `json:"failures"`
}

func runReferences(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if v := mustGetString(cmd, "column"); v != "" {
		cfg.Roster.Column = v
	}
	jsonOutput := mustGetBool(cmd, "json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := roster.Load(mustGetString(cmd, "roster"), cfg.Roster.Column)
	if err != nil {
		return err
	}
	if r.Len() == 0 {
		return fmt.Errorf("roster %s has no identifiers", r.Path)
	}

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	enc := &reference.Encoder{
		Detector:     a.detector,
		Extensions:   cfg.Roster.Extensions,
		MaxImageSize: cfg.Face.MaxImageSize,
		Cache:        a.cache,
		Logger:       a.log,
	}
	if !jsonOutput {
		bar := progressbar.NewOptions(r.Len(),
			progressbar.OptionSetDescription("Encoding references"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("portraits"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		enc.Progress = func(done, total int, id string) { bar.Add(1) }
	}

	_, report, err := enc.Encode(ctx, r.IDs, mustGetString(cmd, "dir"))
	if err != nil {
		return err
	}

	out := referencesOutput{
		Roster:   r.Len(),
		Encoded:  report.Encoded,
		Cached:   report.Cached,
		Skipped:  report.Skipped(),
		Failures: make([]referenceFailureOutput, 0, len(report.Failures)),
	}
	if report.CacheSize >= 0 {
		out.CacheSize = &report.CacheSize
	}
	for _, f := range report.Failures {
		out.Failures = append(out.Failures, referenceFailureOutput{ID: f.ID, Path: f.Path, Error: f.Err.Error()})
	}
	if jsonOutput {
		return outputJSON(out)
	}

	fmt.Printf("\nEncoded %d of %d identifiers (%d from cache)\n", len(out.Encoded), out.Roster, out.Cached)
	if out.CacheSize != nil {
		fmt.Printf("Reference cache holds %d descriptors\n", *out.CacheSize)
	}
	for _, dup := range r.Duplicates {
		fmt.Printf("Duplicate identifier ignored: %s\n", dup)
	}
	if len(out.Failures) == 0 {
		return nil
	}

	fmt.Printf("Skipped: %s\n\n", strings.Join(out.Skipped, ", "))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROBLEM")
	fmt.Fprintln(w, "--\t-------")
	for _, f := range out.Failures {
		fmt.Fprintf(w, "%s\t%s\n", f.ID, f.Error)
	}
	w.Flush()
	return nil
}
