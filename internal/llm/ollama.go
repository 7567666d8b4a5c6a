package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"swim-rules-rag/internal/models"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// SystemPrompt sets the persona and the decision rules for situation analysis
const SystemPrompt = `You are an expert USA Swimming official with comprehensive knowledge of
swimming rules and regulations.

Your task is to analyze swimming scenarios and determine if they constitute violations that would
result in disqualification.

For each scenario, you must:
1. Carefully review the provided rule context
2. Determine if the scenario describes a violation
3. Provide your decision as either "ALLOWED" or "DISQUALIFICATION"
4. Give a detailed rationale explaining your decision
5. List the specific rule identifiers that support your decision

Be precise and authoritative in your analysis. Base your decisions strictly on the provided rules.`

const noRulesContext = "No relevant rules found in database."

// OllamaAnalyzer asks an Ollama model for a ruling on a scenario
type OllamaAnalyzer struct {
	Client      *api.Client
	Model       string
	Temperature float64
	NumPredict  int

	logger *zap.Logger
}

// NewOllamaAnalyzer creates a new Ollama analyzer
func NewOllamaAnalyzer(client *api.Client, model string, logger *zap.Logger) *OllamaAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OllamaAnalyzer{
		Client:      client,
		Model:       model,
		Temperature: 0.1,
		NumPredict:  1000,
		logger:      logger,
	}
}

// BuildUserPrompt creates the user prompt for a scenario and its retrieved rules
func BuildUserPrompt(scenario string, rules []models.RetrievedRule) string {
	var promptBuilder strings.Builder

	promptBuilder.WriteString("SCENARIO TO ANALYZE:\n")
	promptBuilder.WriteString(scenario)
	promptBuilder.WriteString("\n\nRELEVANT RULES CONTEXT:\n")
	promptBuilder.WriteString(FormatRulesContext(rules))
	promptBuilder.WriteString("\n\nPlease analyze this scenario and provide your response in the following JSON format:\n")
	promptBuilder.WriteString(`{
    "decision": "ALLOWED" or "DISQUALIFICATION",
    "rationale": "Detailed explanation of your decision",
    "rule_citations": ["rule_id_1", "rule_id_2", ...],
    "confidence_score": 0.95
}`)
	promptBuilder.WriteString("\n\nFocus on the specific rules that apply to this scenario and explain your reasoning clearly.\n")

	return promptBuilder.String()
}

// FormatRulesContext renders retrieved rules as the context block of the prompt
func FormatRulesContext(rules []models.RetrievedRule) string {
	if len(rules) == 0 {
		return noRulesContext
	}

	parts := make([]string, 0, len(rules))
	for _, r := range rules {
		parts = append(parts, fmt.Sprintf("\nRULE %s: %s\nCategory: %s\nContent: %s\n---",
			r.Identifier(), r.Title(), r.CategoryName(), r.Content))
	}
	return strings.Join(parts, "\n")
}

// GenerateResponse generates a response from the LLM
func (o *OllamaAnalyzer) GenerateResponse(ctx context.Context, system, prompt string) (string, error) {
	stream := false
	req := api.GenerateRequest{
		Model:  o.Model,
		System: system,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": o.Temperature,
			"num_predict": o.NumPredict,
		},
	}

	var responseBuilder strings.Builder

	err := o.Client.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		_, err := responseBuilder.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	return responseBuilder.String(), nil
}

// Analyze asks the model for a ruling on scenario given the retrieved rules
func (o *OllamaAnalyzer) Analyze(ctx context.Context, scenario string, rules []models.RetrievedRule) (models.AnalysisResult, error) {
	response, err := o.GenerateResponse(ctx, SystemPrompt, BuildUserPrompt(scenario, rules))
	if err != nil {
		return models.AnalysisResult{}, err
	}

	o.logger.Debug("model response", zap.String("model", o.Model), zap.Int("length", len(response)))
	return ParseAnalysis(response, rules), nil
}

type rawAnalysis struct {
	Decision        *string   `json:"decision"`
	Rationale       *string   `json:"rationale"`
	RuleCitations   *[]string `json:"rule_citations"`
	ConfidenceScore *float64  `json:"confidence_score"`
}

// ParseAnalysis turns a model response into an AnalysisResult. Responses
// carrying a JSON object are decoded from the first "{" to the last "}";
// anything else is read as prose.
func ParseAnalysis(response string, rules []models.RetrievedRule) models.AnalysisResult {
	if !strings.Contains(response, "{") || !strings.Contains(response, "}") {
		decision := models.DecisionAllowed
		if strings.Contains(strings.ToLower(response), "disqualification") {
			decision = models.DecisionDisqualification
		}

		citations := []string{}
		for i := 0; i < len(rules) && i < 3; i++ {
			citations = append(citations, rules[i].Identifier())
		}

		return models.AnalysisResult{
			Decision:        decision,
			Rationale:       response,
			RuleCitations:   citations,
			ConfidenceScore: 0.7,
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")

	var raw rawAnalysis
	if start > end || json.Unmarshal([]byte(response[start:end+1]), &raw) != nil {
		return models.AnalysisResult{
			Decision:        models.DecisionDisqualification,
			Rationale:       "Error parsing analysis response. Please consult official rules.",
			RuleCitations:   []string{},
			ConfidenceScore: 0,
		}
	}

	result := models.AnalysisResult{
		Decision:        models.DecisionDisqualification,
		Rationale:       "Unable to parse analysis",
		RuleCitations:   []string{},
		ConfidenceScore: 0.5,
	}
	if raw.Decision != nil {
		result.Decision = models.Decision(*raw.Decision)
	}
	if raw.Rationale != nil {
		result.Rationale = *raw.Rationale
	}
	if raw.RuleCitations != nil {
		result.RuleCitations = *raw.RuleCitations
	}
	if raw.ConfidenceScore != nil {
		result.ConfidenceScore = *raw.ConfidenceScore
	}
	return result
}
