package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the document index",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	consultant, err := consultantService(cmd)
	if err != nil {
		return err
	}
	status := consultant.Status()

	if statusJSON {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println("Index Status")
	cmd.Println("============")
	cmd.Printf("  Location:   %s\n", status.Location)
	if !status.Ready {
		cmd.Println("  Ready:      no")
		if status.LoadError != "" {
			cmd.Printf("  Problem:    %s\n", status.LoadError)
			cmd.Println()
			cmd.Println("Run 'consultant index --rebuild' to rebuild the index.")
		} else {
			cmd.Println()
			cmd.Println("Run 'consultant index' to build the index.")
		}
		return nil
	}

	cmd.Println("  Ready:      yes")
	cmd.Printf("  Documents:  %d\n", status.Sources)
	cmd.Printf("  Chunks:     %d\n", status.Entries)
	cmd.Printf("  Model:      %s (%d dimensions)\n", status.Model, status.Dimensions)
	if status.LastBuild != nil {
		cmd.Printf("  Last build: %s at %s\n", status.LastBuild.State, status.LastBuild.FinishedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
