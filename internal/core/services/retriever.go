package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/vectorindex"
)

// Retriever finds the chunks most similar to a question.
// It must use the embedder the index was built with.
type Retriever struct {
	embedder driven.EmbeddingService
	timeout  time.Duration
}

// NewRetriever creates a retriever. A zero timeout leaves calls unbounded
// apart from the caller's context.
func NewRetriever(embedder driven.EmbeddingService, timeout time.Duration) *Retriever {
	return &Retriever{embedder: embedder, timeout: timeout}
}

// Retrieve embeds query and returns the k nearest chunks of idx, best first.
// No similarity threshold is applied here.
func (r *Retriever) Retrieve(
	ctx context.Context,
	idx *vectorindex.Index,
	query string,
	k int,
) (domain.RetrievalResult, error) {
	if idx == nil {
		return nil, domain.ErrIndexNotReady
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}

	callCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	vec, err := r.embedder.Embed(callCtx, query)
	if err != nil {
		return nil, &domain.EmbeddingError{Batch: -1, Attempts: 1, Err: domain.WrapContextErr(err)}
	}

	return idx.Search(vec, k)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
