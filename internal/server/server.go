package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"swim-rules-rag/internal/analysis"
	"swim-rules-rag/internal/models"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

const ServiceName = "swim-rules-agent"

const analyzeRequestSchema = `{
	"type": "object",
	"properties": {
		"scenario": {"type": "string"}
	},
	"required": ["scenario"]
}`

// RuleLookup finds the stored rules most similar to a query
type RuleLookup interface {
	LookupRules(ctx context.Context, query string, n int) ([]models.RetrievedRule, error)
}

// Options configures the HTTP front end
type Options struct {
	Addr              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxScenarioLength int
}

// Server is the HTTP front end for situation analysis
type Server struct {
	analyzer analysis.Analyzer
	lookup   RuleLookup
	opts     Options
	schema   *gojsonschema.Schema
	logger   *zap.Logger
}

type analyzeRequest struct {
	Scenario string `json:"scenario"`
}

type lookupResponse struct {
	Query   string                 `json:"query"`
	Results []models.RetrievedRule `json:"results"`
}

var scenarioExamples = map[string][]string{
	"stroke_violations": {
		"Swimmer did not touch the wall with both hands simultaneously during breaststroke turn",
		"Butterfly swimmer used alternating arm strokes during the race",
		"Breaststroke swimmer performed dolphin kick after the turn",
	},
	"starting_violations": {
		"Swimmer left the starting block before the starting signal",
		"Swimmer had both feet off the starting platform before the start",
		"Relay swimmer left the block before teammate touched the wall",
	},
	"general_violations": {
		"Swimmer interfered with another swimmer in adjacent lane",
		"Swimmer used the lane rope for support during the race",
		"Swimmer walked on the pool bottom during competition",
	},
}

// New creates the HTTP server. A nil analyzer or lookup makes the matching
// endpoints answer 503.
func New(analyzer analysis.Analyzer, lookup RuleLookup, opts Options, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxScenarioLength <= 0 {
		opts.MaxScenarioLength = 2000
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(analyzeRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid request schema: %w", err)
	}

	return &Server{
		analyzer: analyzer,
		lookup:   lookup,
		opts:     opts,
		schema:   schema,
		logger:   logger,
	}, nil
}

// Handler returns the routed handler with request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/scenario-examples", s.handleScenarioExamples)
	mux.HandleFunc("GET /api/rules/lookup", s.handleLookup)

	return s.withRequestID(s.withLogging(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if !result.Valid() {
		var errMsgs []string
		for _, desc := range result.Errors() {
			errMsgs = append(errMsgs, desc.String())
		}
		writeError(w, http.StatusBadRequest, "Invalid request: "+strings.Join(errMsgs, "; "))
		return
	}

	var req analyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := analysis.ValidateScenario(req.Scenario, s.opts.MaxScenarioLength); err != nil {
		switch {
		case errors.Is(err, analysis.ErrEmptyScenario):
			writeError(w, http.StatusBadRequest, "Scenario description cannot be empty")
		case errors.Is(err, analysis.ErrScenarioTooLong):
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Scenario description too long (max %d characters)", s.opts.MaxScenarioLength))
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "Analysis service unavailable")
		return
	}

	report, err := s.analyzer.AnalyzeSituation(r.Context(), req.Scenario)
	if err != nil {
		s.logger.Error("analysis failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Analysis failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, analysis.Normalize(report))
}

func (s *Server) handleScenarioExamples(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, scenarioExamples)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}

	n := analysis.DefaultResults
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Query parameter n must be an integer")
			return
		}
		n = parsed
	}

	if s.lookup == nil {
		writeError(w, http.StatusServiceUnavailable, "Rule lookup unavailable")
		return
	}

	rules, err := s.lookup.LookupRules(r.Context(), query, n)
	if err != nil {
		s.logger.Error("rule lookup failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Rule lookup failed: %v", err))
		return
	}
	if rules == nil {
		rules = []models.RetrievedRule{}
	}

	writeJSON(w, http.StatusOK, lookupResponse{Query: query, Results: rules})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
