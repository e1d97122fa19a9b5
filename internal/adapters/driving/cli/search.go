package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/logger"
)

// snippetLen bounds the passage text shown per result.
const snippetLen = 200

var searchJSON bool

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Show the passages a question would be answered from",
	Long: `Retrieves the document passages most similar to the query, best first,
without asking the language model. Useful to check what the index holds.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	consultant, err := consultantService(cmd)
	if err != nil {
		return err
	}

	hits, err := consultant.Search(cmd.Context(), args[0])
	if err != nil {
		logger.Debug("search: %v", err)
		return errors.New(domain.UserMessage(err))
	}

	if searchJSON {
		return outputSearchJSON(cmd, hits)
	}

	return outputSearchTable(cmd, hits)
}

func outputSearchJSON(cmd *cobra.Command, hits domain.RetrievalResult) error {
	data, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, hits domain.RetrievalResult) error {
	if len(hits) == 0 {
		cmd.Println("No relevant passages found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range hits {
		// Format: [N] Source (Similarity)
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, hits[i].Chunk.SourceName, hits[i].Similarity)
		cmd.Printf("      %s\n", snippet(hits[i].Chunk.Text))
		cmd.Println()
	}

	return nil
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetLen {
		return text
	}
	return string(runes[:snippetLen]) + "..."
}
