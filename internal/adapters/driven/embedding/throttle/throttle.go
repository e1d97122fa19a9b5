// Package throttle rate limits calls to an embedding service.
package throttle

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// EmbeddingService delays requests to the wrapped service so that the
// sustained rate stays at or below the configured requests per second.
// Ping and metadata calls are not limited.
type EmbeddingService struct {
	driven.EmbeddingService
	limiter *rate.Limiter
}

// Wrap returns svc limited to requestsPerSecond. A non-positive rate
// returns svc unchanged.
func Wrap(svc driven.EmbeddingService, requestsPerSecond float64) driven.EmbeddingService {
	if requestsPerSecond <= 0 {
		return svc
	}
	burst := max(1, int(math.Ceil(requestsPerSecond)))
	return &EmbeddingService{
		EmbeddingService: svc,
		limiter:          rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Embed waits for a token and then embeds text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.EmbeddingService.Embed(ctx, text)
}

// EmbedBatch waits for a token and then embeds texts. One batch costs one request.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.EmbeddingService.EmbedBatch(ctx, texts)
}
