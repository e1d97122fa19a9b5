package driven

import "context"

// CorpusWatcher reports changes to the documents directory.
type CorpusWatcher interface {
	// Watch emits the path of every created, modified, removed or renamed
	// corpus file until ctx is cancelled. The channel is closed on return.
	Watch(ctx context.Context) (<-chan string, error)
}
