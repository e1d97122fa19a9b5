package driving

import (
	"context"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

// Consultant is the caller-facing API of the knowledge retrieval subsystem.
// Callers own formatting and delivery; on error they should show
// domain.UserMessage(err) rather than the error text.
type Consultant interface {
	// BuildOrUpdateIndex brings the index in line with the documents directory.
	// Per-file problems are reported in the BuildReport, not as an error.
	BuildOrUpdateIndex(ctx context.Context) (*domain.BuildReport, error)

	// Rebuild discards the current index and embeds the whole corpus again.
	// This is required after changing the embedding model.
	Rebuild(ctx context.Context) (*domain.BuildReport, error)

	// AnswerQuery answers a free-text question from the indexed corpus.
	AnswerQuery(ctx context.Context, question string) (*domain.Answer, error)

	// Search returns the chunks a question would be answered from, without
	// calling the generative model.
	Search(ctx context.Context, question string) (domain.RetrievalResult, error)

	// Status describes the index currently served to queries.
	Status() domain.IndexStatus
}
