package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"swim-rules-rag/internal/analysis"
	"swim-rules-rag/internal/models"
)

type stubAnalyzer struct {
	report models.SituationReport
	err    error
	calls  int
}

func (s *stubAnalyzer) AnalyzeSituation(context.Context, string) (models.SituationReport, error) {
	s.calls++
	return s.report, s.err
}

type stubLookup struct {
	rules []models.RetrievedRule
	err   error
	query string
	n     int
}

func (s *stubLookup) LookupRules(_ context.Context, query string, n int) ([]models.RetrievedRule, error) {
	s.query, s.n = query, n
	return s.rules, s.err
}

func newTestServer(t *testing.T, analyzer analysis.Analyzer, lookup RuleLookup) http.Handler {
	t.Helper()

	s, err := New(analyzer, lookup, Options{}, nil)
	require.NoError(t, err)
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, nil, nil), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"swim-rules-agent"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestAnalyze(t *testing.T) {
	a := &stubAnalyzer{report: models.SituationReport{
		Decision:      "MAYBE",
		Rationale:     "Unclear.",
		RuleCitations: []string{" 101.2.2 ", ""},
	}}
	h := newTestServer(t, a, nil)

	rec := do(t, h, http.MethodPost, "/api/analyze", `{"scenario":"Breaststroke swimmer used a flutter kick"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"decision":"DISQUALIFICATION","rationale":"Unclear.","rule_citations":["101.2.2"]}`, rec.Body.String())
	assert.Equal(t, 1, a.calls)
}

func TestAnalyze_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"not json", `scenario=x`, "Invalid JSON body"},
		{"not an object", `"x"`, "Invalid request"},
		{"missing scenario", `{}`, "Invalid request"},
		{"wrong type", `{"scenario": 5}`, "Invalid request"},
		{"blank scenario", `{"scenario": "   "}`, "Scenario description cannot be empty"},
		{"too long", `{"scenario": "` + strings.Repeat("a", 2001) + `"}`, "Scenario description too long (max 2000 characters)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &stubAnalyzer{}
			rec := do(t, newTestServer(t, a, nil), http.MethodPost, "/api/analyze", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, detail(t, rec), tt.detail)
			assert.Zero(t, a.calls)
		})
	}
}

func TestAnalyze_LengthCountsCharacters(t *testing.T) {
	a := &stubAnalyzer{report: models.SituationReport{Decision: models.DecisionAllowed, Rationale: "ok"}}
	body := `{"scenario": "` + strings.Repeat("é", 2000) + `"}`

	rec := do(t, newTestServer(t, a, nil), http.MethodPost, "/api/analyze", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyze_Unavailable(t *testing.T) {
	rec := do(t, newTestServer(t, nil, nil), http.MethodPost, "/api/analyze", `{"scenario":"early start"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Analysis service unavailable", detail(t, rec))
}

func TestAnalyze_AnalyzerError(t *testing.T) {
	a := &stubAnalyzer{err: errors.New("broken pipe")}
	rec := do(t, newTestServer(t, a, nil), http.MethodPost, "/api/analyze", `{"scenario":"early start"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Analysis failed: broken pipe", detail(t, rec))
}

func TestAnalyze_MethodNotAllowed(t *testing.T) {
	rec := do(t, newTestServer(t, &stubAnalyzer{}, nil), http.MethodGet, "/api/analyze", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScenarioExamples(t *testing.T) {
	rec := do(t, newTestServer(t, nil, nil), http.MethodGet, "/api/scenario-examples", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var groups map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groups))
	assert.Len(t, groups, 3)
	for _, key := range []string{"stroke_violations", "starting_violations", "general_violations"} {
		assert.Len(t, groups[key], 3, key)
	}
}

func TestLookup(t *testing.T) {
	l := &stubLookup{rules: []models.RetrievedRule{
		{Content: "Relay takeoffs", Metadata: models.ChunkMetadata{RuleNumber: "101.7"}, RelevanceScore: 0.7},
	}}
	h := newTestServer(t, nil, l)

	rec := do(t, h, http.MethodGet, "/api/rules/lookup?q=relay+exchange&n=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "relay exchange", l.query)
	assert.Equal(t, 3, l.n)

	var resp lookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "101.7", resp.Results[0].Metadata.RuleNumber)

	rec = do(t, h, http.MethodGet, "/api/rules/lookup?q=relay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, l.n)
}

func TestLookup_Errors(t *testing.T) {
	h := newTestServer(t, nil, &stubLookup{err: errors.New("db down")})

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/rules/lookup", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/rules/lookup?q=x&n=many", "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/api/rules/lookup?q=x", "").Code)

	h = newTestServer(t, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/rules/lookup?q=x", "").Code)
}

func TestMiddleware_RequestIDAndLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s, err := New(nil, nil, Options{}, zap.New(core))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "/health", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}
