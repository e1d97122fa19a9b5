package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index up to date while documents change",
	Long: `Builds the index, then watches the documents directory and updates the
index shortly after files are added, changed or removed. The index is also
refreshed periodically, which retries a save that failed earlier.

Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if rt == nil {
		return errors.New("scheduler not configured")
	}
	scheduler, err := rt.Scheduler(cmd.Context())
	if err != nil {
		return err
	}

	cmd.Println("Watching documents for changes (Ctrl+C to stop)...")
	if err := scheduler.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch failed: %w", err)
	}
	cmd.Println("Stopped.")
	return nil
}
