package driven

// BuildLock serialises index builds on one index directory across processes.
type BuildLock interface {
	// TryLock acquires the lock without blocking.
	// Returns domain.ErrBuildInProgress if another holder has it.
	TryLock() error

	// Unlock releases the lock.
	Unlock() error
}
