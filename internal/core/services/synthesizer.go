package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/logger"
)

// Synthesizer turns a question and its retrieved chunks into an answer.
type Synthesizer struct {
	llm     driven.LLMService
	prompts driven.PromptStore
	timeout time.Duration
	opts    driven.GenerateOptions
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(
	llm driven.LLMService,
	prompts driven.PromptStore,
	timeout time.Duration,
	opts driven.GenerateOptions,
) *Synthesizer {
	return &Synthesizer{llm: llm, prompts: prompts, timeout: timeout, opts: opts}
}

// Synthesize asks the model to answer question from hits.
// With no hits the model is still asked, using the ungrounded prompt.
// The model output is returned verbatim.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	question string,
	hits domain.RetrievalResult,
) (*domain.Answer, error) {
	prompt, err := s.Prompt(question, hits)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.llm.Generate(callCtx, prompt, s.opts)
	if err != nil {
		return nil, &domain.GenerationError{Err: domain.WrapContextErr(err)}
	}
	logger.Debug("generated %d chars with %s in %s", len(text), s.llm.ModelName(), time.Since(start))

	return &domain.Answer{
		Text:        text,
		Grounded:    len(hits) > 0,
		ContextUsed: hits.SourceNames(),
		Source:      domain.AnswerSourceRAG,
	}, nil
}

// Prompt renders the prompt sent to the model.
func (s *Synthesizer) Prompt(question string, hits domain.RetrievalResult) (string, error) {
	if len(hits) == 0 {
		tpl, err := s.prompts.Load(driven.PromptAnswerUngrounded)
		if err != nil {
			return "", fmt.Errorf("load prompt: %w", err)
		}
		return strings.NewReplacer(driven.PlaceholderQuestion, question).Replace(tpl), nil
	}

	tpl, err := s.prompts.Load(driven.PromptAnswerGrounded)
	if err != nil {
		return "", fmt.Errorf("load prompt: %w", err)
	}
	// One pass, so placeholder text inside the passages or question stays literal.
	r := strings.NewReplacer(
		driven.PlaceholderContext, ContextBlock(hits),
		driven.PlaceholderQuestion, question,
	)
	return r.Replace(tpl), nil
}

// ContextBlock formats hits in rank order, each tagged with its source name.
func ContextBlock(hits domain.RetrievalResult) string {
	var sb strings.Builder
	for i, hit := range hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[source: %s]\n%s", hit.Chunk.SourceName, hit.Chunk.Text)
	}
	return sb.String()
}
