package domain

import "time"

// BuildState is a state of the index build state machine.
type BuildState string

// Build states in the order a successful build passes through them.
// BuildFailed is reachable from any state.
const (
	BuildIdle      BuildState = "idle"
	BuildScanning  BuildState = "scanning"
	BuildLoading   BuildState = "loading"
	BuildSplitting BuildState = "splitting"
	BuildEmbedding BuildState = "embedding"
	BuildCreating  BuildState = "creating"
	BuildMerging   BuildState = "merging"
	BuildPersisted BuildState = "persisted"
	BuildFailed    BuildState = "failed"
)

// IsTerminal returns true if no further transitions follow this state.
func (s BuildState) IsTerminal() bool {
	return s == BuildPersisted || s == BuildFailed
}

// String returns the string representation.
func (s BuildState) String() string {
	return string(s)
}

// FileFailure records why one corpus file was skipped.
type FileFailure struct {
	// Name is the document name relative to the corpus directory.
	Name string `json:"name"`

	// Stage is the build state the failure happened in.
	Stage BuildState `json:"stage"`

	// Reason is the technical error text, for logs and operators.
	Reason string `json:"reason"`
}

// BuildReport summarises one build or update run.
type BuildReport struct {
	// Added counts files whose chunks were embedded and added.
	Added int `json:"added"`

	// Skipped counts files left out on purpose: unchanged since the
	// last build, or in an unsupported format.
	Skipped int `json:"skipped"`

	// Failed counts files that could not be loaded, split or embedded.
	Failed int `json:"failed"`

	// Removed counts sources dropped from the index because the file
	// changed or disappeared.
	Removed int `json:"removed"`

	// Chunks is the number of chunks added in this run.
	Chunks int `json:"chunks"`

	// IndexReady is true when a searchable index is loaded in memory.
	IndexReady bool `json:"index_ready"`

	// State is the final state of the build.
	State BuildState `json:"state"`

	// Failures holds per-file failure details.
	Failures []FileFailure `json:"failures,omitempty"`

	// PersistWarning is set when the index is usable in memory but
	// could not be written to disk.
	PersistWarning string `json:"persist_warning,omitempty"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RecordFailure appends a failure and bumps the failed counter.
func (r *BuildReport) RecordFailure(name string, stage BuildState, err error) {
	r.Failed++
	r.Failures = append(r.Failures, FileFailure{Name: name, Stage: stage, Reason: err.Error()})
}

// IndexStatus describes the snapshot currently served to queries.
type IndexStatus struct {
	// Ready is true when an index is loaded.
	Ready bool `json:"ready"`

	// Entries is the number of chunks in the index.
	Entries int `json:"entries"`

	// Sources is the number of distinct source documents.
	Sources int `json:"sources"`

	// Dimensions is the vector dimension D.
	Dimensions int `json:"dimensions"`

	// Model is the embedding model the index was built with.
	Model string `json:"model"`

	// Location is where the index is persisted.
	Location string `json:"location"`

	// BuildState is the state of the running build, or the final state
	// of the last one.
	BuildState BuildState `json:"build_state"`

	// LoadError explains why a persisted index could not be served.
	LoadError string `json:"load_error,omitempty"`

	// LastBuild is the report of the last build run by this process, if any.
	LastBuild *BuildReport `json:"last_build,omitempty"`
}
