package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/logger"
)

// AnswerQueryInput is the input schema for the answer_query tool.
type AnswerQueryInput struct {
	Question string `json:"question" jsonschema:"the safety question to answer"`
}

// AnswerQueryOutput is the output schema for the answer_query tool.
type AnswerQueryOutput struct {
	Answer      string   `json:"answer"`
	Grounded    bool     `json:"grounded"`
	ContextUsed []string `json:"context_used"`
	Source      string   `json:"source"`
}

// BuildIndexInput is the input schema for the build_index tool.
type BuildIndexInput struct {
	Rebuild bool `json:"rebuild,omitempty" jsonschema:"embed every document again instead of updating changed ones"`
}

// BuildIndexOutput is the output schema for the build_index tool.
type BuildIndexOutput struct {
	Added          int             `json:"added"`
	Skipped        int             `json:"skipped"`
	Failed         int             `json:"failed"`
	Removed        int             `json:"removed"`
	Chunks         int             `json:"chunks"`
	IndexReady     bool            `json:"index_ready"`
	State          string          `json:"state"`
	Failures       []FailureOutput `json:"failures,omitempty"`
	PersistWarning string          `json:"persist_warning,omitempty"`
	Duration       string          `json:"duration"`
}

// FailureOutput describes one document the build skipped.
type FailureOutput struct {
	Name   string `json:"name"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the question to find supporting passages for"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single retrieved passage.
type SearchResultOutput struct {
	ChunkID    string  `json:"chunk_id"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "answer_query",
		Description: "Answer a workplace safety question from the organisation's documents",
	}, s.handleAnswerQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "build_index",
		Description: "Index new and changed documents so they can be used in answers",
	}, s.handleBuildIndex)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Find the document passages most relevant to a question",
	}, s.handleSearch)
}

// handleAnswerQuery handles the answer_query tool invocation.
// Errors reach the client as a short user message; details go to the log.
func (s *Server) handleAnswerQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnswerQueryInput,
) (*mcp.CallToolResult, AnswerQueryOutput, error) {
	answer, err := s.ports.Consultant.AnswerQuery(ctx, input.Question)
	if err != nil {
		logger.Error("mcp: answer_query: %v", err)
		return nil, AnswerQueryOutput{}, errors.New(domain.UserMessage(err))
	}

	return nil, AnswerQueryOutput{
		Answer:      answer.Text,
		Grounded:    answer.Grounded,
		ContextUsed: answer.ContextUsed,
		Source:      answer.Source,
	}, nil
}

// handleBuildIndex handles the build_index tool invocation.
func (s *Server) handleBuildIndex(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input BuildIndexInput,
) (*mcp.CallToolResult, BuildIndexOutput, error) {
	build := s.ports.Consultant.BuildOrUpdateIndex
	if input.Rebuild {
		build = s.ports.Consultant.Rebuild
	}

	report, err := build(ctx)
	if err != nil {
		logger.Error("mcp: build_index: %v", err)
		return nil, BuildIndexOutput{}, errors.New(domain.UserMessage(err))
	}
	return nil, buildOutput(report), nil
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	hits, err := s.ports.Consultant.Search(ctx, input.Query)
	if err != nil {
		logger.Error("mcp: search: %v", err)
		return nil, SearchOutput{}, errors.New(domain.UserMessage(err))
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(hits)),
		Count:   len(hits),
	}
	for i := range hits {
		output.Results[i] = SearchResultOutput{
			ChunkID:    hits[i].Chunk.ID,
			Source:     hits[i].Chunk.SourceName,
			Similarity: hits[i].Similarity,
			Content:    hits[i].Chunk.Text,
		}
	}

	return nil, output, nil
}

func buildOutput(report *domain.BuildReport) BuildIndexOutput {
	out := BuildIndexOutput{
		Added:          report.Added,
		Skipped:        report.Skipped,
		Failed:         report.Failed,
		Removed:        report.Removed,
		Chunks:         report.Chunks,
		IndexReady:     report.IndexReady,
		State:          report.State.String(),
		PersistWarning: report.PersistWarning,
		Duration:       report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String(),
	}
	for _, f := range report.Failures {
		out.Failures = append(out.Failures, FailureOutput{Name: f.Name, Stage: f.Stage.String(), Reason: f.Reason})
	}
	return out
}
