package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedFormat indicates a file extension outside pdf, docx and txt.
	// Batch ingestion skips such files.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEmptyCorpus indicates a build found nothing to index and no prior index exists.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrEmptyIndex indicates an attempt to create an index from no entries.
	ErrEmptyIndex = errors.New("empty index")

	// ErrDimensionMismatch indicates vectors of different sizes were mixed.
	// This is a configuration error: two embedding models were used for one index.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrModelMismatch indicates the persisted index was built with another embedding model.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrIndexNotFound signals no persisted index exists yet. It means "build fresh".
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexNotReady indicates no index is loaded in memory.
	ErrIndexNotReady = errors.New("index not ready")

	// ErrBuildInProgress indicates another build holds the index directory.
	ErrBuildInProgress = errors.New("build in progress")

	// ErrTimeout indicates a model call exceeded its deadline or was cancelled.
	ErrTimeout = errors.New("timeout")

	// ErrLLMUnavailable indicates the generative model is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding model is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)

// LoadError reports a corpus file that could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// EmbeddingError reports a failed embedding batch after all retries.
type EmbeddingError struct {
	// Batch is the zero-based batch number within the build, or -1 for a query.
	Batch int

	// Attempts is the number of calls made.
	Attempts int

	Err error
}

func (e *EmbeddingError) Error() string {
	if e.Batch < 0 {
		return fmt.Sprintf("embed query: %v", e.Err)
	}
	return fmt.Sprintf("embed batch %d (after %d attempts): %v", e.Batch, e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// DimensionMismatchError carries the expected and offending dimensions.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: index has %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// PersistError reports a failure to write the index to disk.
type PersistError struct {
	Dir string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist index to %s: %v", e.Dir, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// GenerationError reports a failed generative model call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate answer: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// WrapContextErr maps context cancellation and deadline errors to ErrTimeout,
// keeping the original error in the chain.
func WrapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// IsRebuildRequired reports whether err means the persisted index was built
// with another embedding model and must be rebuilt from scratch.
func IsRebuildRequired(err error) bool {
	return errors.Is(err, ErrModelMismatch) || errors.Is(err, ErrDimensionMismatch)
}

// UserMessage returns a short, non-technical message for err.
// Technical detail belongs in logs, not in front of users.
func UserMessage(err error) string {
	var genErr *GenerationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "The consultant took too long to respond. Please try again."
	case errors.As(err, &genErr):
		return "The consultant could not prepare an answer right now. Please try again."
	case errors.Is(err, ErrIndexNotReady), errors.Is(err, ErrIndexNotFound), errors.Is(err, ErrEmptyCorpus):
		return "The knowledge base is not available yet."
	case errors.Is(err, ErrBuildInProgress):
		return "The knowledge base is being updated. Please try again shortly."
	default:
		return "The consultant service is temporarily unavailable."
	}
}
