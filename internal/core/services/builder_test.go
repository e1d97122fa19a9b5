package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/vectorindex"
)

func TestIndexBuilder_Build_EmptyCorpusFails(t *testing.T) {
	rig := newTestRig(t, nil)

	idx, report, err := rig.builder.Build(context.Background(), nil, false)

	require.ErrorIs(t, err, domain.ErrEmptyCorpus)
	assert.Nil(t, idx)
	assert.Equal(t, domain.BuildFailed, report.State)
	assert.False(t, report.IndexReady)
	assert.Equal(t, 0, rig.store.Persists())
	assert.Equal(t, domain.BuildFailed, rig.builder.State())
}

func TestIndexBuilder_Build_OnlyUnsupportedFilesFails(t *testing.T) {
	rig := newTestRig(t, map[string]string{"notes.md": "# fire", "image.png": "x"})

	_, report, err := rig.builder.Build(context.Background(), nil, false)

	require.ErrorIs(t, err, domain.ErrEmptyCorpus)
	assert.Equal(t, 2, report.Skipped)
}

func TestIndexBuilder_Build_FullBuild(t *testing.T) {
	rig := newTestRig(t, map[string]string{
		"doc1.txt":  fireText,
		"doc2.pdf":  electricalText,
		"readme.md": "ignored",
	})

	idx, report, err := rig.builder.Build(context.Background(), nil, false)

	require.NoError(t, err)
	require.NotNil(t, idx)
	assert.Equal(t, domain.BuildPersisted, report.State)
	assert.True(t, report.IndexReady)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, idx.Len(), report.Chunks)
	assert.Empty(t, report.PersistWarning)
	assert.Equal(t, []string{"doc1.txt", "doc2.pdf"}, idx.Sources())
	assert.Equal(t, "keyword-test", idx.Model())
	assert.Equal(t, 1, rig.store.Persists())

	manifest, err := rig.manifest.List(context.Background())
	require.NoError(t, err)
	require.Len(t, manifest, 2)
	assert.Equal(t, "doc1.txt", manifest[0].SourceName)
	assert.Equal(t, hashText(fireText), manifest[0].ContentHash)
	assert.Equal(t, domain.FormatTXT, manifest[0].Format)

	var ids []string
	for _, c := range idx.Chunks() {
		if c.SourceName == "doc1.txt" {
			ids = append(ids, c.ID)
		}
	}
	assert.Equal(t, ids, manifest[0].ChunkIDs)
}

func TestIndexBuilder_Build_UnchangedFilesAreSkipped(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "doc2.txt": electricalText})
	first, _, err := rig.builder.Build(context.Background(), nil, false)
	require.NoError(t, err)
	loads, batches := rig.corpus.loadCount(), rig.embedder.batches()

	second, report, err := rig.builder.Build(context.Background(), first, false)

	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 0, report.Removed)
	assert.Equal(t, domain.BuildPersisted, report.State)
	assert.Equal(t, loads, rig.corpus.loadCount(), "no file should be re-read")
	assert.Equal(t, batches, rig.embedder.batches(), "nothing should be re-embedded")
	assert.Equal(t, 1, rig.store.Persists())
}

func TestIndexBuilder_Build_ChangedFileIsReplaced(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "doc2.txt": electricalText})
	first, _, err := rig.builder.Build(context.Background(), nil, false)
	require.NoError(t, err)

	rig.corpus.set("doc2.txt", chemicalText)
	second, report, err := rig.builder.Build(context.Background(), first, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{"doc1.txt", "doc2.txt"}, second.Sources())
	for _, c := range second.Chunks() {
		assert.NotContains(t, c.Text, "Electrical", "stale chunk survived the update")
	}
	var stillThere bool
	for _, c := range first.Chunks() {
		stillThere = stillThere || strings.Contains(c.Text, "Electrical")
	}
	assert.True(t, stillThere, "the prior index is never modified")
	assert.Equal(t, 2, rig.store.Persists())
}

func TestIndexBuilder_Build_DeletedFileIsRemoved(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "doc2.txt": electricalText})
	first, _, err := rig.builder.Build(context.Background(), nil, false)
	require.NoError(t, err)

	rig.corpus.remove("doc2.txt")
	second, report, err := rig.builder.Build(context.Background(), first, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, []string{"doc1.txt"}, second.Sources())

	manifest, err := rig.manifest.List(context.Background())
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.Equal(t, "doc1.txt", manifest[0].SourceName)
}

func TestIndexBuilder_Build_AllFilesDeletedKeepsPrior(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	first, _, err := rig.builder.Build(context.Background(), nil, false)
	require.NoError(t, err)

	rig.corpus.remove("doc1.txt")
	idx, report, err := rig.builder.Build(context.Background(), first, false)

	require.ErrorIs(t, err, domain.ErrEmptyCorpus)
	assert.Nil(t, idx)
	assert.Equal(t, domain.BuildFailed, report.State)
	assert.Equal(t, 1, rig.store.Persists(), "the persisted index is not replaced")
}

func TestIndexBuilder_Build_LoadFailureIsRecorded(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "broken.docx": "x"})
	rig.corpus.loadErr["broken.docx"] = errors.New("zip: not a valid zip file")

	idx, report, err := rig.builder.Build(context.Background(), nil, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "broken.docx", report.Failures[0].Name)
	assert.Equal(t, domain.BuildLoading, report.Failures[0].Stage)
	assert.Contains(t, report.Failures[0].Reason, "not a valid zip")
	assert.Equal(t, []string{"doc1.txt"}, idx.Sources())

	// The failed file is retried by the next build.
	manifest, err := rig.manifest.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, manifest, 1)
}

func TestIndexBuilder_Build_UnreadableFileDoesNotAbortScan(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "locked.txt": electricalText})
	rig.corpus.readErr["locked.txt"] = errors.New("permission denied")

	idx, report, err := rig.builder.Build(context.Background(), nil, false)

	require.NoError(t, err)
	assert.Equal(t, []string{"doc1.txt"}, idx.Sources())
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "locked.txt", report.Failures[0].Name)
	assert.Equal(t, domain.BuildScanning, report.Failures[0].Stage)
	assert.Contains(t, report.Failures[0].Reason, "permission denied")
}

func TestIndexBuilder_Build_UnreadableFileKeepsIndexedVersion(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "doc2.txt": electricalText})
	first, _, err := rig.builder.Build(context.Background(), nil, false)
	require.NoError(t, err)
	rig.corpus.readErr["doc2.txt"] = errors.New("permission denied")

	second, report, err := rig.builder.Build(context.Background(), first, false)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc1.txt", "doc2.txt"}, second.Sources())
	assert.Equal(t, 0, report.Removed)
	assert.Equal(t, 1, report.Failed)
}

func TestIndexBuilder_Build_AllFilesUnreadableFails(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	rig.corpus.readErr["doc1.txt"] = errors.New("permission denied")

	_, report, err := rig.builder.Build(context.Background(), nil, false)

	require.ErrorIs(t, err, domain.ErrEmptyCorpus)
	assert.Contains(t, err.Error(), "doc1.txt")
	assert.Equal(t, 1, report.Failed)
}

func TestIndexBuilder_Build_EmbeddingFailureSkipsFile(t *testing.T) {
	rig := newTestRig(t, map[string]string{
		"a.txt": fireText,
		"b.txt": chemicalText,
		"c.txt": electricalText,
	})
	// Batch size is 2: a+b in batch 0, c in batch 1.
	rig.embedder.batchErr = func(_ int, texts []string) error {
		for _, t := range texts {
			if strings.Contains(t, "Electrical") {
				return errors.New("model overloaded")
			}
		}
		return nil
	}

	idx, report, err := rig.builder.Build(context.Background(), nil, false)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "c.txt", report.Failures[0].Name)
	assert.Equal(t, domain.BuildEmbedding, report.Failures[0].Stage)
	assert.Contains(t, report.Failures[0].Reason, "after 3 attempts")
	assert.Equal(t, []string{"a.txt", "b.txt"}, idx.Sources())
}

func TestIndexBuilder_Build_TransientEmbeddingFailureIsRetried(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	rig.embedder.batchErr = func(call int, _ []string) error {
		if call < 2 {
			return errors.New("503 service unavailable")
		}
		return nil
	}

	_, report, err := rig.builder.Build(context.Background(), nil, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 3, rig.embedder.batches())
}

func TestIndexBuilder_Build_AllEmbeddingsFailWithoutPrior(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	rig.embedder.batchErr = func(int, []string) error { return errors.New("quota exceeded") }

	idx, report, err := rig.builder.Build(context.Background(), nil, false)

	require.ErrorIs(t, err, domain.ErrEmptyCorpus)
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Nil(t, idx)
	assert.Equal(t, domain.BuildFailed, report.State)
	assert.Equal(t, 1, report.Failed)
}

func TestIndexBuilder_Build_EmbedderUnreachableAborts(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	rig.embedder.pingErr = errors.New("connection refused")

	_, report, err := rig.builder.Build(context.Background(), nil, false)

	require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, domain.BuildFailed, report.State)
	assert.Equal(t, 0, rig.corpus.loadCount())
}

func TestIndexBuilder_Build_ModelMismatchNeedsRebuild(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	prior, err := vectorindex.Create([]domain.IndexEntry{{
		Chunk:  domain.Chunk{ID: "old", SourceName: "doc1.txt", Text: "old"},
		Vector: keywordVector("fire"),
	}}, vectorindex.WithModel("another-model"))
	require.NoError(t, err)

	_, _, err = rig.builder.Build(context.Background(), prior, false)
	require.ErrorIs(t, err, domain.ErrModelMismatch)

	idx, report, err := rig.builder.Build(context.Background(), prior, true)
	require.NoError(t, err)
	assert.Equal(t, "keyword-test", idx.Model())
	assert.Equal(t, 1, report.Added)
	for _, c := range idx.Chunks() {
		assert.NotEqual(t, "old", c.ID)
	}
}

func TestIndexBuilder_Build_DimensionMismatchAborts(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	prior, err := vectorindex.Create([]domain.IndexEntry{{
		Chunk:  domain.Chunk{ID: "x", SourceName: "other.txt", Text: "x"},
		Vector: []float32{1, 0, 0},
	}}, vectorindex.WithModel("keyword-test"))
	require.NoError(t, err)

	_, _, err = rig.builder.Build(context.Background(), prior, false)

	var dimErr *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Want)
}

func TestIndexBuilder_Build_PersistFailureIsAWarning(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	rig.store.PersistErr = errors.New("read-only file system")

	idx, report, err := rig.builder.Build(context.Background(), nil, false)

	require.NoError(t, err)
	require.NotNil(t, idx)
	assert.True(t, report.IndexReady)
	assert.Contains(t, report.PersistWarning, "read-only file system")
	assert.Equal(t, 0, rig.store.Persists())
	manifest, _ := rig.manifest.List(context.Background())
	assert.Empty(t, manifest)

	// Nothing changed on disk, but the next build retries the save.
	rig.store.PersistErr = nil
	again, report, err := rig.builder.Build(context.Background(), idx, false)

	require.NoError(t, err)
	assert.Same(t, idx, again)
	assert.Empty(t, report.PersistWarning)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, rig.store.Persists())
	manifest, _ = rig.manifest.List(context.Background())
	assert.Len(t, manifest, 1)
}

func TestIndexBuilder_Build_ManifestFailureIsAWarning(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	rig.manifest.ReplaceErr = errors.New("database is locked")

	_, report, err := rig.builder.Build(context.Background(), nil, false)

	require.NoError(t, err)
	assert.Contains(t, report.PersistWarning, "database is locked")
	assert.Equal(t, 1, rig.store.Persists())
}

func TestIndexBuilder_Build_EmptyDocumentIsSkipped(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText, "blank.txt": "   \n"})

	idx, report, err := rig.builder.Build(context.Background(), nil, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{"doc1.txt"}, idx.Sources())

	_, report, err = rig.builder.Build(context.Background(), idx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped, "the blank file is remembered in the manifest")
}

func TestIndexBuilder_Build_LockHeldElsewhere(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	rig.lock.held = true

	_, report, err := rig.builder.Build(context.Background(), nil, false)

	require.ErrorIs(t, err, domain.ErrBuildInProgress)
	assert.Equal(t, domain.BuildFailed, report.State)
	assert.Equal(t, 0, rig.corpus.loadCount())
}

func TestIndexBuilder_Build_ConcurrentBuildInProcess(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	rig.builder.mu.Lock()
	defer rig.builder.mu.Unlock()

	_, _, err := rig.builder.Build(context.Background(), nil, false)

	assert.ErrorIs(t, err, domain.ErrBuildInProgress)
	assert.Equal(t, 0, rig.lock.acquired)
}

func TestIndexBuilder_Build_ReleasesLock(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})

	_, _, err := rig.builder.Build(context.Background(), nil, false)
	require.NoError(t, err)

	assert.False(t, rig.lock.held)
	assert.Equal(t, 1, rig.lock.acquired)
}

func TestIndexBuilder_Build_CancelledContext(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, report, err := rig.builder.Build(ctx, nil, false)

	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, domain.BuildFailed, report.State)
}

func TestIndexBuilder_Build_OrphanSourcesAreReEmbedded(t *testing.T) {
	rig := newTestRig(t, map[string]string{"doc1.txt": fireText})
	first, _, err := rig.builder.Build(context.Background(), nil, false)
	require.NoError(t, err)

	// Losing the manifest must not leave duplicate chunks behind.
	require.NoError(t, rig.manifest.Replace(context.Background(), nil))
	second, report, err := rig.builder.Build(context.Background(), first, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, first.Len(), second.Len())
}

func TestBuildConfig_WithDefaults(t *testing.T) {
	cfg := BuildConfig{MaxRetries: -1}.withDefaults()

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, DefaultRetryBase, cfg.RetryBase)
	assert.Equal(t, DefaultRetryMax, cfg.RetryMax)
}
