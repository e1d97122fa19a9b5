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

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a safety question",
	Long: `Answers a question from the indexed documents and lists the documents
the answer drew on. When no document is relevant the answer is marked as
not grounded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	consultant, err := consultantService(cmd)
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	answer, err := consultant.AnswerQuery(cmd.Context(), question)
	if err != nil {
		logger.Debug("ask: %v", err)
		return errors.New(domain.UserMessage(err))
	}

	if askJSON {
		data, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(strings.TrimSpace(answer.Text))
	cmd.Println()
	if !answer.Grounded {
		cmd.Println("Note: no indexed document covers this question; the answer is not grounded.")
		return nil
	}
	cmd.Printf("Sources: %s\n", strings.Join(answer.ContextUsed, ", "))
	return nil
}
