package driving

import "context"

// Scheduler keeps the index current in the background.
type Scheduler interface {
	// Start runs until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop shuts the scheduler down and waits for a running build to end.
	Stop() error
}
