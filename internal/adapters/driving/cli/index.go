package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driving"
)

// progressInterval is how often a running build's state is polled.
var progressInterval = 500 * time.Millisecond

var (
	indexRebuild bool
	indexJSON    bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or update the document index",
	Long: `Scans the documents directory and brings the index in line with it.
New and changed documents are embedded, deleted ones are removed and
unchanged ones are skipped.

Use --rebuild after changing the embedding model: it embeds every
document again and replaces the index.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "embed every document again")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output the build report as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	consultant, err := consultantService(cmd)
	if err != nil {
		return err
	}

	build := consultant.BuildOrUpdateIndex
	if indexRebuild {
		build = consultant.Rebuild
	}

	if !indexJSON {
		cmd.Println("Indexing documents...")
	}
	report, err := buildWithProgress(cmd, consultant, build)
	if err != nil {
		if report != nil && len(report.Failures) > 0 && !indexJSON {
			printFailures(cmd, report.Failures)
		}
		if domain.IsRebuildRequired(err) {
			return fmt.Errorf("index build failed: %w\nRun 'consultant index --rebuild' to re-embed all documents", err)
		}
		return fmt.Errorf("index build failed: %w", err)
	}

	if indexJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	printReport(cmd, report)
	return nil
}

// buildWithProgress runs build while printing build state changes.
func buildWithProgress(
	cmd *cobra.Command,
	consultant driving.Consultant,
	build func(context.Context) (*domain.BuildReport, error),
) (*domain.BuildReport, error) {
	type result struct {
		report *domain.BuildReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := build(cmd.Context())
		done <- result{report, err}
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	last := consultant.Status().BuildState
	for {
		select {
		case r := <-done:
			return r.report, r.err
		case <-ticker.C:
			state := consultant.Status().BuildState
			if state != last && !state.IsTerminal() && !indexJSON {
				cmd.Printf("  %s...\n", state)
			}
			last = state
		}
	}
}

func printReport(cmd *cobra.Command, report *domain.BuildReport) {
	cmd.Println()
	cmd.Printf("  Added:   %d (%d chunks)\n", report.Added, report.Chunks)
	cmd.Printf("  Removed: %d\n", report.Removed)
	cmd.Printf("  Skipped: %d\n", report.Skipped)
	cmd.Printf("  Failed:  %d\n", report.Failed)
	if !report.FinishedAt.IsZero() {
		cmd.Printf("  Took:    %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}

	if len(report.Failures) > 0 {
		printFailures(cmd, report.Failures)
	}
	if report.PersistWarning != "" {
		cmd.Println()
		cmd.Printf("Warning: %s\n", report.PersistWarning)
		cmd.Println("The index is usable now and will be saved on the next run.")
	}

	cmd.Println()
	cmd.Println("Index is ready.")
}

func printFailures(cmd *cobra.Command, failures []domain.FileFailure) {
	cmd.Println()
	cmd.Println("Failed documents:")
	for _, f := range failures {
		cmd.Printf("  %s (%s): %s\n", f.Name, f.Stage, f.Reason)
	}
}
