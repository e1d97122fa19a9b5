package mcp

import (
	"context"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

// mockConsultant is a mock implementation of driving.Consultant.
type mockConsultant struct {
	answer   *domain.Answer
	report   *domain.BuildReport
	hits     domain.RetrievalResult
	status   domain.IndexStatus
	err      error
	rebuilt  bool
	question string
}

func (m *mockConsultant) BuildOrUpdateIndex(_ context.Context) (*domain.BuildReport, error) {
	return m.report, m.err
}

func (m *mockConsultant) Rebuild(_ context.Context) (*domain.BuildReport, error) {
	m.rebuilt = true
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
