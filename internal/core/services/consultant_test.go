package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
)

func TestConsultant_FireQuestionIsGroundedInFireDocument(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "doc2.txt": electricalText})
	_, err := rig.consultant.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)

	hits, err := rig.consultant.retriever.Retrieve(context.Background(), rig.consultant.snapshot.Load(),
		"Что делать при пожаре?", 4)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc1.txt", hits[0].Chunk.SourceName)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)

	answer, err := rig.consultant.AnswerQuery(context.Background(), "Что делать при пожаре?")

	require.NoError(t, err)
	assert.True(t, answer.Grounded)
	assert.Equal(t, []string{"doc1.txt"}, answer.ContextUsed)
	assert.Equal(t, domain.AnswerSourceRAG, answer.Source)
	assert.Equal(t, "Follow the procedure.", answer.Text)
	assert.Contains(t, rig.llm.lastPrompt(), "[source: doc1.txt]\n"+fireText)
	assert.NotContains(t, rig.llm.lastPrompt(), "doc2.txt")
}

func TestConsultant_UnrelatedQuestionIsUngrounded(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "doc2.txt": electricalText})
	rig.llm.response = "The speed of light is about 300,000 km/s."
	_, err := rig.consultant.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)

	answer, err := rig.consultant.AnswerQuery(context.Background(), "What is the speed of light?")

	require.NoError(t, err)
	assert.False(t, answer.Grounded)
	assert.NotNil(t, answer.ContextUsed)
	assert.Empty(t, answer.ContextUsed)
	assert.Equal(t, "The speed of light is about 300,000 km/s.", answer.Text)
	assert.Equal(t, "NO CONTEXT. QUESTION: What is the speed of light?", rig.llm.lastPrompt())
}

func TestConsultant_MinSimilarityFiltersHits(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "doc2.txt": fireText + " electrical shock"})
	_, err := rig.consultant.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)

	loose := rig.newConsultant(QueryConfig{TopK: 4})
	loose.snapshot.Store(rig.consultant.snapshot.Load())
	strict := rig.newConsultant(QueryConfig{TopK: 4, MinSimilarity: 0.9})
	strict.snapshot.Store(rig.consultant.snapshot.Load())

	all, err := loose.Search(context.Background(), "fire")
	require.NoError(t, err)
	some, err := strict.Search(context.Background(), "fire")
	require.NoError(t, err)

	assert.Len(t, all, 2)
	require.Len(t, some, 1)
	assert.Equal(t, "doc1.txt", some[0].Chunk.SourceName)
	assert.Greater(t, some[0].Similarity, 0.9)
}

func TestConsultant_TopKBoundsContext(t *testing.T) {
	rig := newTestRig(t, map[string]string{
		"a.txt": fireText,
		"b.txt": "Fire drill schedule.",
		"c.txt": "Flame retardant clothing.",
	})
	c := rig.newConsultant(QueryConfig{TopK: 2})
	_, err := c.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)

	answer, err := c.AnswerQuery(context.Background(), "fire")

	require.NoError(t, err)
	assert.Len(t, answer.ContextUsed, 2)
}

func TestConsultant_AnswerQuery_Errors(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})

	_, err := rig.consultant.AnswerQuery(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = rig.consultant.AnswerQuery(context.Background(), "fire?")
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)
	assert.Equal(t, "The knowledge base is not available yet.", domain.UserMessage(err))
}

func TestConsultant_AnswerQuery_GenerationFailure(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	_, err := rig.consultant.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)
	rig.llm.err = errors.New("500 internal error")

	_, err = rig.consultant.AnswerQuery(context.Background(), "fire?")

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.ErrorContains(t, err, "500 internal error")
}

func TestConsultant_AnswerQuery_GenerationTimeout(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	rig.llm.block = true
	c := NewConsultant(
		rig.builder,
		NewRetriever(rig.embedder, 0),
		NewSynthesizer(rig.llm, &mockPromptStore{}, 20*time.Millisecond, driven.GenerateOptions{}),
		rig.store, rig.embedder, QueryConfig{TopK: 4},
	)
	_, err := c.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)

	_, err = c.AnswerQuery(context.Background(), "fire?")

	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "The consultant took too long to respond. Please try again.", domain.UserMessage(err))
}

func TestConsultant_AnswerQuery_EmbeddingFailure(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	_, err := rig.consultant.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)
	rig.embedder.embedErr = errors.New("connection reset")

	_, err = rig.consultant.AnswerQuery(context.Background(), "fire?")

	var embErr *domain.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, -1, embErr.Batch)
	assert.Empty(t, rig.llm.prompts, "the model is not called without retrieval")
}

func TestConsultant_FailedBuildKeepsServingSnapshot(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	_, err := rig.consultant.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)

	rig.corpus.remove("doc1.txt")
	report, err := rig.consultant.BuildOrUpdateIndex(context.Background())
	require.ErrorIs(t, err, domain.ErrEmptyCorpus)
	assert.Equal(t, domain.BuildFailed, report.State)

	answer, err := rig.consultant.AnswerQuery(context.Background(), "fire?")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1.txt"}, answer.ContextUsed)

	status := rig.consultant.Status()
	assert.True(t, status.Ready)
	assert.Equal(t, domain.BuildFailed, status.BuildState)
	assert.Same(t, report, status.LastBuild)
}

func TestConsultant_Open_LoadsPersistedIndex(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "doc2.txt": electricalText})
	_, err := rig.consultant.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)
	before, err := rig.consultant.Search(context.Background(), "shock")
	require.NoError(t, err)

	fresh := rig.newConsultant(QueryConfig{TopK: 4})
	require.NoError(t, fresh.Open(context.Background()))
	after, err := fresh.Search(context.Background(), "shock")
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.True(t, fresh.Status().Ready)
}

func TestConsultant_Open_NoIndexYet(t *testing.T) {
	rig := newTestRig(t, nil)

	require.NoError(t, rig.consultant.Open(context.Background()))

	status := rig.consultant.Status()
	assert.False(t, status.Ready)
	assert.Empty(t, status.LoadError)
	assert.Equal(t, ":memory:", status.Location)
}

func TestConsultant_Open_ModelMismatchRequiresRebuild(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	_, err := rig.consultant.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)

	rig.embedder.model = "new-model"
	fresh := rig.newConsultant(QueryConfig{TopK: 4})

	err = fresh.Open(context.Background())
	require.ErrorIs(t, err, domain.ErrModelMismatch)
	assert.False(t, fresh.Status().Ready)
	assert.Contains(t, fresh.Status().LoadError, "rebuild required")

	_, err = fresh.BuildOrUpdateIndex(context.Background())
	require.ErrorIs(t, err, domain.ErrModelMismatch)

	report, err := fresh.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	status := fresh.Status()
	assert.True(t, status.Ready)
	assert.Equal(t, "new-model", status.Model)
	assert.Empty(t, status.LoadError)
}

func TestConsultant_Status(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "doc2.txt": electricalText})
	report, err := rig.consultant.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)

	status := rig.consultant.Status()

	assert.True(t, status.Ready)
	assert.Equal(t, 2, status.Entries)
	assert.Equal(t, 2, status.Sources)
	assert.Equal(t, len(keywordAxes)+1, status.Dimensions)
	assert.Equal(t, "keyword-test", status.Model)
	assert.Equal(t, domain.BuildPersisted, status.BuildState)
	assert.Same(t, report, status.LastBuild)
}

type closeRecorder struct {
	name  string
	order *[]string
	err   error
}

func (c closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestConsultant_Close(t *testing.T) {
	rig := newTestRig(t, nil)
	var order []string
	c := NewConsultant(rig.builder, nil, nil, rig.store, rig.embedder, QueryConfig{},
		closeRecorder{name: "embedder", order: &order},
		closeRecorder{name: "llm", order: &order, err: errors.New("llm close failed")},
	)

	err := c.Close()

	assert.Equal(t, []string{"llm", "embedder"}, order)
	assert.ErrorContains(t, err, "llm close failed")
	assert.Equal(t, domain.DefaultSettings().Retrieval.TopK, c.cfg.TopK)
}

func TestConsultant_QueriesDuringRebuild(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "doc2.txt": electricalText})
	_, err := rig.consultant.BuildOrUpdateIndex(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rig.consultant.AnswerQuery(context.Background(), "fire?")
			errs <- err
		}()
	}
	_, buildErr := rig.consultant.Rebuild(context.Background())
	wg.Wait()
	close(errs)

	require.NoError(t, buildErr)
	for err := range errs {
		assert.NoError(t, err)
	}
}
