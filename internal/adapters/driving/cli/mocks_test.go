package cli

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driving"
)

// mockConsultant implements driving.Consultant for testing.
type mockConsultant struct {
	mu       sync.Mutex
	answer   *domain.Answer
	hits     domain.RetrievalResult
	report   *domain.BuildReport
	status   domain.IndexStatus
	err      error
	rebuilt  bool
	question string
}

func (m *mockConsultant) BuildOrUpdateIndex(_ context.Context) (*domain.BuildReport, error) {
	return m.report, m.err
}

func (m *mockConsultant) Rebuild(_ context.Context) (*domain.BuildReport, error) {
	m.mu.Lock()
	m.rebuilt = true
	m.mu.Unlock()
	return m.report, m.err
}

func (m *mockConsultant) AnswerQuery(_ context.Context, question string) (*domain.Answer, error) {
	m.question = question
	return m.answer, m.err
}

func (m *mockConsultant) Search(_ context.Context, question string) (domain.RetrievalResult, error) {
	m.question = question
	return m.hits, m.err
}

func (m *mockConsultant) Status() domain.IndexStatus {
	return m.status
}

// mockSettingsService implements driving.SettingsService over a map.
type mockSettingsService struct {
	settings domain.Settings
	values   map[string]string
	apiKeys  map[domain.AIProvider]string
	setErr   error
	checkErr error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{
		settings: domain.DefaultSettings(),
		values:   make(map[string]string),
		apiKeys:  make(map[domain.AIProvider]string),
	}
}

func (m *mockSettingsService) Get() (*domain.Settings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *mockSettingsService) SetAPIKey(provider domain.AIProvider, key string) error {
	m.apiKeys[provider] = key
	return nil
}

func (m *mockSettingsService) Keys() []string {
	keys := []string{"retrieval.top_k", "documents.dir", "llm.model"}
	sort.Strings(keys)
	return keys
}

func (m *mockSettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

func (m *mockSettingsService) Check(_ context.Context) error {
	return m.checkErr
}

// mockScheduler implements driving.Scheduler and returns when ctx ends.
type mockScheduler struct {
	started bool
	err     error
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.started = true
	if m.err != nil {
		return m.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockScheduler) Stop() error {
	return nil
}

// mockRuntime implements Runtime over the mocks above.
type mockRuntime struct {
	consultant    *mockConsultant
	settings      *mockSettingsService
	scheduler     *mockScheduler
	consultantErr error
	closed        bool
}

func (m *mockRuntime) Settings() driving.SettingsService {
	return m.settings
}

func (m *mockRuntime) Consultant(_ context.Context) (driving.Consultant, error) {
	if m.consultantErr != nil {
		return nil, m.consultantErr
	}
	return m.consultant, nil
}

func (m *mockRuntime) Scheduler(_ context.Context) (driving.Scheduler, error) {
	return m.scheduler, nil
}

func (m *mockRuntime) Close() error {
	m.closed = true
	return nil
}

// setupTestRuntime installs a mock runtime and resets command flags afterwards.
func setupTestRuntime(t *testing.T) *mockRuntime {
	t.Helper()
	mock := &mockRuntime{
		consultant: &mockConsultant{},
		settings:   newMockSettingsService(),
		scheduler:  &mockScheduler{},
	}
	old := rt
	rt = mock
	t.Cleanup(func() {
		rt = old
		resetFlags()
	})
	return mock
}

func resetFlags() {
	indexRebuild, indexJSON = false, false
	askJSON, searchJSON, statusJSON = false, false, false
	verbose, logJSON, configDir = false, false, ""
	resetContexts(rootCmd)
}

// resetContexts clears the context cobra stores on each command during a
// run; a command keeps it otherwise and ignores later ExecuteContext calls.
func resetContexts(cmd *cobra.Command) {
	for _, sub := range cmd.Commands() {
		sub.SetContext(nil) //nolint:staticcheck // nil lets cobra inherit the next root context
		resetContexts(sub)
	}
}

// execute runs the root command with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags()
	})

	err := rootCmd.Execute()
	return buf.String(), err
}
