package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

// fakeOllama serves /api/tags, /api/embed and /api/generate. Embeddings
// count fire and electrical keywords so retrieval is predictable.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	embed := func(text string) []float64 {
		lower := strings.ToLower(text)
		v := []float64{
			float64(strings.Count(lower, "fire") + strings.Count(lower, "пожар")),
			float64(strings.Count(lower, "electric") + strings.Count(lower, "shock")),
			0,
		}
		if v[0] == 0 && v[1] == 0 {
			v[2] = 1
		}
		return v
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([][]float64, len(req.Input))
		for i, text := range req.Input {
			out[i] = embed(text)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		answer := "No documents cover this."
		if strings.Contains(req.Prompt, "[source: fire.txt]") {
			answer = "Raise the alarm and evacuate."
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": answer, "done": true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, configDir, baseURL string) (*App, string) {
	t.Helper()
	root := filepath.Dir(configDir)
	docs := filepath.Join(root, "documents")

	a, err := New(configDir)
	require.NoError(t, err)
	for key, value := range map[string]string{
		"documents.dir":      docs,
		"index.dir":          filepath.Join(root, "index"),
		"embedding.base_url": baseURL,
		"llm.base_url":       baseURL,
	} {
		require.NoError(t, a.Settings().Set(key, value))
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, docs
}

func TestApp_EndToEnd(t *testing.T) {
	srv := fakeOllama(t)
	configDir := filepath.Join(t.TempDir(), "config")
	a, docs := newTestApp(t, configDir, srv.URL)

	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "fire.txt"),
		[]byte("Fire procedure: raise the alarm, leave by the stairs, call the fire brigade."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "electrical.txt"),
		[]byte("Electrical safety: isolate the supply before helping a shock victim."), 0o600))

	ctx := context.Background()
	c, err := a.Consultant(ctx)
	require.NoError(t, err)
	assert.False(t, c.Status().Ready)

	report, err := c.BuildOrUpdateIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	assert.Empty(t, report.PersistWarning)

	answer, err := c.AnswerQuery(ctx, "Что делать при пожаре?")
	require.NoError(t, err)
	assert.True(t, answer.Grounded)
	assert.Equal(t, []string{"fire.txt"}, answer.ContextUsed)
	assert.Equal(t, "Raise the alarm and evacuate.", answer.Text)

	answer, err = c.AnswerQuery(ctx, "What is the speed of light?")
	require.NoError(t, err)
	assert.False(t, answer.Grounded)
	assert.Empty(t, answer.ContextUsed)

	// A second process serves the persisted index without building.
	require.NoError(t, a.Close())
	b, _ := newTestApp(t, configDir, srv.URL)
	c2, err := b.Consultant(ctx)
	require.NoError(t, err)
	status := c2.Status()
	assert.True(t, status.Ready)
	assert.Equal(t, 2, status.Sources)
	assert.Equal(t, 3, status.Dimensions)
	assert.Equal(t, "nomic-embed-text", status.Model)

	report, err = c2.BuildOrUpdateIndex(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Added)
	assert.Equal(t, 2, report.Skipped)

	sched, err := b.Scheduler(ctx)
	require.NoError(t, err)
	assert.NotNil(t, sched)
}

func TestApp_ConsultantNeedsReachableProvider(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	a, _ := newTestApp(t, filepath.Join(t.TempDir(), "config"), srv.URL)

	_, err := a.Consultant(context.Background())

	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestApp_SettingsWithoutProviders(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")

	a, err := New(configDir)
	require.NoError(t, err)

	assert.Equal(t, configDir, a.ConfigDir())
	settings, err := a.Settings().Get()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings().Retrieval.TopK, settings.Retrieval.TopK)
	assert.NoError(t, a.Close())
	assert.DirExists(t, configDir)
}
