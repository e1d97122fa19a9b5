package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/safety-consultant/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/postprocessors/chunker"
)

// --- Mock implementations ---

// mockCorpus implements driven.Corpus and driven.DocumentLoader over an in-memory file set.
type mockCorpus struct {
	mu      sync.Mutex
	files   map[string]string
	loadErr map[string]error
	readErr map[string]error
	scanErr error
	loads   int
}

func newMockCorpus(files map[string]string) *mockCorpus {
	c := &mockCorpus{
		files:   make(map[string]string),
		loadErr: make(map[string]error),
		readErr: make(map[string]error),
	}
	for name, text := range files {
		c.files[name] = text
	}
	return c
}

func (c *mockCorpus) set(name, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[name] = text
}

func (c *mockCorpus) remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.files, name)
}

func (c *mockCorpus) loadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func (c *mockCorpus) Scan(_ context.Context) ([]domain.CorpusFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanErr != nil {
		return nil, c.scanErr
	}

	out := make([]domain.CorpusFile, 0, len(c.files))
	for name, text := range c.files {
		f := domain.CorpusFile{Path: "/corpus/" + name, Name: name}
		if format, err := domain.FormatFromPath(name); err == nil {
			f.Format = format
			if err := c.readErr[name]; err != nil {
				f.Err = &domain.LoadError{Path: f.Path, Err: err}
			} else {
				f.ContentHash = hashText(text)
			}
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *mockCorpus) Root() string {
	return "/corpus"
}

func (c *mockCorpus) Load(_ context.Context, path, name string) (*domain.SourceDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	if err := c.loadErr[name]; err != nil {
		return nil, &domain.LoadError{Path: path, Err: err}
	}
	text, ok := c.files[name]
	if !ok {
		return nil, &domain.LoadError{Path: path, Err: errors.New("file vanished")}
	}
	format, err := domain.FormatFromPath(name)
	if err != nil {
		return nil, err
	}
	return &domain.SourceDocument{
		Path:        path,
		Name:        name,
		Format:      format,
		Text:        text,
		ContentHash: hashText(text),
	}, nil
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// keywordAxes give the mock embedder a tiny, predictable semantic space.
var keywordAxes = [][]string{
	{"fire", "пожар", "flame", "extinguisher"},
	{"electric", "электр", "voltage", "shock"},
	{"chemical", "spill", "химич"},
	{"safety", "безопасн"},
}

// keywordVector counts keyword hits per axis. Text with no keyword points
// along an extra axis so it is never the zero vector.
func keywordVector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(keywordAxes)+1)
	found := false
	for i, words := range keywordAxes {
		for _, w := range words {
			if n := strings.Count(lower, w); n > 0 {
				v[i] += float32(n)
				found = true
			}
		}
	}
	if !found {
		v[len(v)-1] = 1
	}
	return v
}

// mockEmbeddingService implements driven.EmbeddingService with keyword vectors.
type mockEmbeddingService struct {
	mu         sync.Mutex
	model      string
	pingErr    error
	embedErr   error
	batchErr   func(call int, texts []string) error
	batchCalls int
	embedCalls int
	closed     bool
}

func newMockEmbedder() *mockEmbeddingService {
	return &mockEmbeddingService{model: "keyword-test"}
}

func (m *mockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.embedCalls++
	err := m.embedErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return keywordVector(text), nil
}

func (m *mockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	call := m.batchCalls
	m.batchCalls++
	fail := m.batchErr
	m.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if fail != nil {
		if err := fail(call, texts); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = keywordVector(t)
	}
	return out, nil
}

func (m *mockEmbeddingService) batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchCalls
}

func (m *mockEmbeddingService) Dimensions() int {
	return len(keywordAxes) + 1
}

func (m *mockEmbeddingService) ModelName() string {
	return m.model
}

func (m *mockEmbeddingService) Ping(ctx context.Context) error {
	if m.pingErr != nil {
		return m.pingErr
	}
	return ctx.Err()
}

func (m *mockEmbeddingService) Close() error {
	m.closed = true
	return nil
}

// mockLLMService implements driven.LLMService and records prompts.
type mockLLMService struct {
	mu       sync.Mutex
	response string
	err      error
	block    bool
	prompts  []string
}

func (m *mockLLMService) Generate(ctx context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	resp, err, block := m.response, m.err, m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

func (m *mockLLMService) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

func (m *mockLLMService) ModelName() string {
	return "mock-llm"
}

func (m *mockLLMService) Ping(_ context.Context) error {
	return nil
}

func (m *mockLLMService) Close() error {
	return nil
}

// mockPromptStore implements driven.PromptStore with compact templates.
type mockPromptStore struct {
	err       error
	templates map[string]string
}

func (m *mockPromptStore) Load(name string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if tpl, ok := m.templates[name]; ok {
		return tpl, nil
	}
	switch name {
	case driven.PromptAnswerGrounded:
		return "CONTEXT:\n{{context}}\nQUESTION: {{question}}", nil
	case driven.PromptAnswerUngrounded:
		return "NO CONTEXT. QUESTION: {{question}}", nil
	default:
		return "", errors.New("unknown prompt")
	}
}

func (m *mockPromptStore) Reload() {}

// mockLock implements driven.BuildLock.
type mockLock struct {
	mu       sync.Mutex
	held     bool
	tryErr   error
	acquired int
}

func (l *mockLock) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tryErr != nil {
		return l.tryErr
	}
	if l.held {
		return domain.ErrBuildInProgress
	}
	l.held = true
	l.acquired++
	return nil
}

func (l *mockLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

// --- Test helpers ---

const (
	fireText = "Fire safety procedure: raise the alarm, evacuate the building " +
		"and use the extinguisher only on small fires."
	electricalText = "Electrical safety: isolate the power supply before touching " +
		"a person who has received a shock."
	chemicalText = "Chemical spill response: ventilate the area and contain the spill with absorbent."
)

// testRig wires a builder and consultant over mocks and in-memory stores.
type testRig struct {
	corpus     *mockCorpus
	embedder   *mockEmbeddingService
	llm        *mockLLMService
	store      *memory.IndexStore
	manifest   *memory.ManifestStore
	lock       *mockLock
	builder    *IndexBuilder
	consultant *Consultant
}

func newTestRig(t *testing.T, files map[string]string) *testRig {
	t.Helper()

	splitter, err := chunker.New(chunker.WithMaxChars(200), chunker.WithOverlap(20))
	require.NoError(t, err)

	rig := &testRig{
		corpus:   newMockCorpus(files),
		embedder: newMockEmbedder(),
		llm:      &mockLLMService{response: "Follow the procedure."},
		store:    memory.NewIndexStore(),
		manifest: memory.NewManifestStore(),
		lock:     &mockLock{},
	}
	rig.builder = NewIndexBuilder(
		rig.corpus, rig.corpus, splitter, rig.embedder, rig.store, rig.manifest, rig.lock,
		BuildConfig{Workers: 2, BatchSize: 2, MaxRetries: 2, RetryBase: 1, RetryMax: 1},
	)
	rig.consultant = rig.newConsultant(QueryConfig{TopK: 4})
	return rig
}

func (r *testRig) newConsultant(cfg QueryConfig) *Consultant {
	return NewConsultant(
		r.builder,
		NewRetriever(r.embedder, 0),
		NewSynthesizer(r.llm, &mockPromptStore{}, 0, driven.GenerateOptions{}),
		r.store,
		r.embedder,
		cfg,
	)
}
