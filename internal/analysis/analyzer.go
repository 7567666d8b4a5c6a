package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"swim-rules-rag/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultResults = 5
	MaxLookup      = 10
)

var (
	ErrEmptyScenario   = errors.New("scenario description cannot be empty")
	ErrScenarioTooLong = errors.New("scenario description too long")
	ErrEmptyQuery      = errors.New("query is empty")
)

// ValidateScenario checks that scenario is not blank and has at most maxLen characters
func ValidateScenario(scenario string, maxLen int) error {
	if strings.TrimSpace(scenario) == "" {
		return ErrEmptyScenario
	}
	if maxLen > 0 && utf8.RuneCountInString(scenario) > maxLen {
		return fmt.Errorf("%w (max %d characters)", ErrScenarioTooLong, maxLen)
	}
	return nil
}

// Embedder turns text into an embedding
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// Store finds the stored chunks nearest to an embedding
type Store interface {
	QuerySimilar(ctx context.Context, embedding []float64, limit int) ([]models.RetrievedRule, error)
}

// Generator asks a language model for a ruling
type Generator interface {
	Analyze(ctx context.Context, scenario string, rules []models.RetrievedRule) (models.AnalysisResult, error)
}

// Recorder keeps a log of analyzed scenarios
type Recorder interface {
	RecordScenario(ctx context.Context, scenario string, result models.AnalysisResult) (models.ScenarioRecord, error)
}

// Analyzer rules on swimming scenarios
type Analyzer interface {
	AnalyzeSituation(ctx context.Context, scenario string) (models.SituationReport, error)
}

// Service retrieves the rules relevant to a scenario and asks the model for a ruling
type Service struct {
	Embedder  Embedder
	Store     Store
	Generator Generator
	Recorder  Recorder
	Results   int

	logger *zap.Logger
}

// NewService creates a situation analysis service. Recorder may be nil.
func NewService(embedder Embedder, store Store, generator Generator, recorder Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		Embedder:  embedder,
		Store:     store,
		Generator: generator,
		Recorder:  recorder,
		Results:   DefaultResults,
		logger:    logger,
	}
}

// Retrieve returns the n rules most similar to scenario. Failures are logged
// and yield no rules so analysis can still proceed.
func (s *Service) Retrieve(ctx context.Context, scenario string, n int) []models.RetrievedRule {
	embedding, err := s.Embedder.EmbedText(ctx, scenario)
	if err != nil {
		s.logger.Error("failed to embed scenario", zap.Error(err))
		return []models.RetrievedRule{}
	}

	rules, err := s.Store.QuerySimilar(ctx, embedding, n)
	if err != nil {
		s.logger.Error("failed to retrieve rules", zap.Error(err))
		return []models.RetrievedRule{}
	}
	return rules
}

// Analyze runs retrieval and the model for scenario. Model failures become a
// DISQUALIFICATION result rather than an error.
func (s *Service) Analyze(ctx context.Context, scenario string) models.AnalysisResult {
	scenario = strings.TrimSpace(scenario)
	if scenario == "" {
		return models.AnalysisResult{
			Decision:      models.DecisionDisqualification,
			Rationale:     "No scenario provided for analysis. Unable to make determination.",
			RuleCitations: []string{},
		}
	}

	start := time.Now()
	rules := s.Retrieve(ctx, scenario, s.Results)

	result, err := s.Generator.Analyze(ctx, scenario, rules)
	if err != nil {
		s.logger.Error("failed to analyze scenario", zap.Error(err))
		result = models.AnalysisResult{
			Decision:        models.DecisionDisqualification,
			Rationale:       fmt.Sprintf("Error analyzing scenario: %v. When in doubt, consult official rules.", err),
			RuleCitations:   []string{},
			ConfidenceScore: 0,
		}
	}

	s.logger.Info("scenario analyzed",
		zap.String("decision", string(result.Decision)),
		zap.Int("rules", len(rules)),
		zap.Float64("confidence", result.ConfidenceScore),
		zap.Duration("elapsed", time.Since(start)))

	if s.Recorder != nil {
		if _, err := s.Recorder.RecordScenario(ctx, scenario, result); err != nil {
			s.logger.Warn("failed to record scenario", zap.Error(err))
		}
	}

	return result
}

// AnalyzeSituation returns the ruling on scenario as a report
func (s *Service) AnalyzeSituation(ctx context.Context, scenario string) (models.SituationReport, error) {
	result := s.Analyze(ctx, scenario)

	citations := result.RuleCitations
	if citations == nil {
		citations = []string{}
	}
	return models.SituationReport{
		Decision:      result.Decision,
		Rationale:     result.Rationale,
		RuleCitations: citations,
	}, nil
}

// LookupRules returns the rules most similar to query. n is clamped to [1, 10].
func (s *Service) LookupRules(ctx context.Context, query string, n int) ([]models.RetrievedRule, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	n = ClampResults(n)

	embedding, err := s.Embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	rules, err := s.Store.QuerySimilar(ctx, embedding, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	return rules, nil
}

// ClampResults bounds a requested result count to [1, 10]
func ClampResults(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxLookup {
		return MaxLookup
	}
	return n
}

// Normalize makes a report safe to return. Unknown decisions become
// DISQUALIFICATION and blank citations are dropped.
func Normalize(report models.SituationReport) models.SituationReport {
	if !report.Decision.Valid() {
		report.Decision = models.DecisionDisqualification
	}
	if report.Rationale == "" {
		report.Rationale = "No rationale provided"
	}

	citations := make([]string, 0, len(report.RuleCitations))
	for _, c := range report.RuleCitations {
		if c = strings.TrimSpace(c); c != "" {
			citations = append(citations, c)
		}
	}
	report.RuleCitations = citations
	return report
}
