package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swim-rules-rag/internal/models"
)

type stubAnalyzer struct {
	report   models.SituationReport
	err      error
	scenario string
}

func (s *stubAnalyzer) AnalyzeSituation(_ context.Context, scenario string) (models.SituationReport, error) {
	s.scenario = scenario
	return s.report, s.err
}

type stubLookup struct {
	rules []models.RetrievedRule
	err   error
	n     int
}

func (s *stubLookup) LookupRules(_ context.Context, _ string, n int) ([]models.RetrievedRule, error) {
	s.n = n
	return s.rules, s.err
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	text, ok := firstText(res)
	require.True(t, ok, "result has no text content")
	return text
}

func TestHandleAnalyzeSituation(t *testing.T) {
	a := &stubAnalyzer{report: models.SituationReport{
		Decision:      models.DecisionDisqualification,
		Rationale:     "Left the block early.",
		RuleCitations: []string{"101.1.2"},
	}}
	s := NewServer(a, nil, nil)

	res, err := s.handleAnalyzeSituation(context.Background(),
		callRequest(ToolAnalyzeSituation, map[string]any{"scenario": "Swimmer left the block before the signal"}))
	require.NoError(t, err)

	var report models.SituationReport
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &report))
	assert.Equal(t, a.report, report)
	assert.Equal(t, "Swimmer left the block before the signal", a.scenario)
}

func TestHandleAnalyzeSituation_AnalyzerError(t *testing.T) {
	s := NewServer(&stubAnalyzer{err: errors.New("store offline")}, nil, nil)

	res, err := s.handleAnalyzeSituation(context.Background(),
		callRequest(ToolAnalyzeSituation, map[string]any{"scenario": "x"}))
	require.NoError(t, err)

	var report models.SituationReport
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &report))
	assert.Equal(t, models.DecisionDisqualification, report.Decision)
	assert.Contains(t, report.Rationale, "Tool error: store offline")
	assert.Empty(t, report.RuleCitations)
}

func TestHandleLookupRules(t *testing.T) {
	lookup := &stubLookup{rules: []models.RetrievedRule{
		{Content: "Relay takeoff rules", Metadata: models.ChunkMetadata{RuleNumber: "101.7"}, RelevanceScore: 0.8},
	}}
	s := NewServer(&stubAnalyzer{}, lookup, nil)

	res, err := s.handleLookupRules(context.Background(),
		callRequest(ToolLookupRules, map[string]any{"query": "relay exchange", "n_results": float64(3)}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, 3, lookup.n)

	var rules []models.RetrievedRule
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &rules))
	require.Len(t, rules, 1)
	assert.Equal(t, "101.7", rules[0].Metadata.RuleNumber)

	_, err = s.handleLookupRules(context.Background(),
		callRequest(ToolLookupRules, map[string]any{"query": "relay exchange"}))
	require.NoError(t, err)
	assert.Equal(t, 5, lookup.n)
}

func TestHandleLookupRules_Errors(t *testing.T) {
	s := NewServer(&stubAnalyzer{}, &stubLookup{err: errors.New("db down")}, nil)

	res, err := s.handleLookupRules(context.Background(), callRequest(ToolLookupRules, map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleLookupRules(context.Background(),
		callRequest(ToolLookupRules, map[string]any{"query": "q"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "db down")
}

func TestHandleExtractRules(t *testing.T) {
	s := NewServer(&stubAnalyzer{}, nil, nil)

	res, err := s.handleExtractRules(context.Background(), callRequest(ToolExtractRules, map[string]any{
		"text": "101 GENERAL\n.1 Equipment\nA Swimmers shall not use any device.",
		"page": float64(14),
	}))
	require.NoError(t, err)

	var records []models.RuleRecord
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &records))
	require.Len(t, records, 3)
	assert.Equal(t, "101.1A", records[2].RuleNumber)
	assert.Equal(t, 14, records[2].Page)

	res, err = s.handleExtractRules(context.Background(), callRequest(ToolExtractRules, map[string]any{"text": "nothing here"}))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, res))
}

func TestInProcessRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := &stubAnalyzer{report: models.SituationReport{
		Decision:      models.DecisionAllowed,
		Rationale:     "Legal open turn.",
		RuleCitations: []string{"101.2.3"},
	}}

	c, err := NewInProcess(ctx, NewServer(a, nil, nil).MCPServer(), nil)
	require.NoError(t, err)
	defer c.Close()

	report, err := c.AnalyzeSituation(ctx, "Breaststroke swimmer touched with both hands")
	require.NoError(t, err)
	assert.Equal(t, a.report, report)
	assert.Equal(t, "Breaststroke swimmer touched with both hands", a.scenario)
}

func TestDecodeReport(t *testing.T) {
	tests := []struct {
		name string
		res  *mcp.CallToolResult
		want models.SituationReport
	}{
		{
			name: "json report",
			res:  mcp.NewToolResultText(`{"decision":"ALLOWED","rationale":"ok","rule_citations":["101.1"]}`),
			want: models.SituationReport{Decision: models.DecisionAllowed, Rationale: "ok", RuleCitations: []string{"101.1"}},
		},
		{
			name: "plain text",
			res:  mcp.NewToolResultText("The swimmer should be disqualified."),
			want: models.SituationReport{Decision: models.DecisionDisqualification, Rationale: "The swimmer should be disqualified.", RuleCitations: []string{}},
		},
		{
			name: "tool error",
			res:  mcp.NewToolResultError("boom"),
			want: models.SituationReport{Decision: models.DecisionDisqualification, Rationale: "boom", RuleCitations: []string{}},
		},
		{
			name: "no content",
			res:  &mcp.CallToolResult{},
			want: models.SituationReport{Decision: models.DecisionDisqualification, Rationale: "Unable to parse MCP response", RuleCitations: []string{}},
		},
		{
			name: "pointer text content",
			res:  &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Type: "text", Text: `{"decision":"DISQUALIFICATION","rationale":"r"}`}}},
			want: models.SituationReport{Decision: models.DecisionDisqualification, Rationale: "r", RuleCitations: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeReport(tt.res))
		})
	}
}
