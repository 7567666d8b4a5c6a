package models

import "strconv"

// Category is the rule category assigned by keyword classification
type Category string

const (
	CategoryStarts       Category = "Starts"
	CategoryTurns        Category = "Turns and Finishes"
	CategoryStroke       Category = "Stroke Technique"
	CategoryRelays       Category = "Relays"
	CategoryEquipment    Category = "Equipment and Facilities"
	CategoryOfficials    Category = "Officials"
	CategoryViolations   Category = "Violations and Penalties"
	CategoryGeneral      Category = "General Rules"
	CategoryDefinitions  Category = "Definitions"
	CategoryInterpreting Category = "Interpretations"
)

// StrokeType is the optional stroke classification of a rule. The zero value means unset.
type StrokeType string

const (
	StrokeBreaststroke StrokeType = "breaststroke"
	StrokeButterfly    StrokeType = "butterfly"
	StrokeBackstroke   StrokeType = "backstroke"
	StrokeFreestyle    StrokeType = "freestyle"
	StrokeMedley       StrokeType = "medley"
	StrokeRelay        StrokeType = "relay"
	StrokeStarts       StrokeType = "starts"
	StrokeTurns        StrokeType = "turns"
	StrokeGeneral      StrokeType = "general"
)

// Chunk types
const (
	ChunkTypeRule     = "rule"
	ChunkTypeGlossary = "glossary"
	ChunkTypeGuidance = "guidance"
)

// RuleRecord is one rule, subsection, or sub-subsection heading found in a page of rulebook text
type RuleRecord struct {
	RuleID     string     `json:"rule_id" yaml:"rule_id"`
	RuleNumber string     `json:"rule_number" yaml:"rule_number"`
	RuleTitle  string     `json:"rule_title" yaml:"rule_title"`
	Category   Category   `json:"category" yaml:"category"`
	StrokeType StrokeType `json:"stroke_type,omitempty" yaml:"stroke_type,omitempty"`
	Section    string     `json:"section,omitempty" yaml:"section,omitempty"`
	Page       int        `json:"page" yaml:"page"`
	Source     string     `json:"source,omitempty" yaml:"source,omitempty"`
	ChunkType  string     `json:"chunk_type" yaml:"chunk_type"`
}

// Page is the plain text of one document page. Number is zero-based.
type Page struct {
	Number int
	Text   string
}

// ChunkMetadata is the rule metadata attached to a text chunk
type ChunkMetadata struct {
	RuleID     string `json:"rule_id"`
	RuleNumber string `json:"rule_number"`
	RuleTitle  string `json:"rule_title"`
	Category   string `json:"category"`
	StrokeType string `json:"stroke_type"`
	Section    string `json:"section"`
	ChunkType  string `json:"chunk_type"`
	Source     string `json:"source"`
	Page       int    `json:"page"`
}

// Map returns the metadata as string values, the form vector stores and tool results expect
func (m ChunkMetadata) Map() map[string]string {
	return map[string]string{
		"rule_id":     m.RuleID,
		"rule_number": m.RuleNumber,
		"rule_title":  m.RuleTitle,
		"category":    m.Category,
		"stroke_type": m.StrokeType,
		"section":     m.Section,
		"chunk_type":  m.ChunkType,
		"source":      m.Source,
		"page":        strconv.Itoa(m.Page),
	}
}

// TextChunk represents a chunk of rulebook text ready for embedding
type TextChunk struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float64     `json:"embedding,omitempty"`
}

// RetrievedRule is a chunk returned by similarity search
type RetrievedRule struct {
	Content        string        `json:"content"`
	Metadata       ChunkMetadata `json:"metadata"`
	Distance       float64       `json:"distance"`
	RelevanceScore float64       `json:"relevance_score"`
}

// Identifier returns the rule number the chunk is tagged with, or "Unknown"
func (r RetrievedRule) Identifier() string {
	if r.Metadata.RuleNumber == "" {
		return "Unknown"
	}
	return r.Metadata.RuleNumber
}

// Title returns the rule title the chunk is tagged with, or "No title"
func (r RetrievedRule) Title() string {
	if r.Metadata.RuleTitle == "" {
		return "No title"
	}
	return r.Metadata.RuleTitle
}

// CategoryName returns the chunk category, or "General"
func (r RetrievedRule) CategoryName() string {
	if r.Metadata.Category == "" {
		return "General"
	}
	return r.Metadata.Category
}

// Decision is the outcome of a situation analysis
type Decision string

const (
	DecisionAllowed          Decision = "ALLOWED"
	DecisionDisqualification Decision = "DISQUALIFICATION"
)

// Valid reports whether d is one of the two known decisions
func (d Decision) Valid() bool {
	return d == DecisionAllowed || d == DecisionDisqualification
}

// AnalysisResult is the structured answer parsed from the LLM
type AnalysisResult struct {
	Decision        Decision `json:"decision"`
	Rationale       string   `json:"rationale"`
	RuleCitations   []string `json:"rule_citations"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// SituationReport is the response returned to tool and HTTP callers
type SituationReport struct {
	Decision      Decision `json:"decision"`
	Rationale     string   `json:"rationale"`
	RuleCitations []string `json:"rule_citations"`
}

// ScenarioRecord is a stored analysis of a scenario
type ScenarioRecord struct {
	ID              string   `json:"id"`
	Scenario        string   `json:"scenario"`
	Decision        Decision `json:"decision"`
	Rationale       string   `json:"rationale"`
	RuleCitations   []string `json:"rule_citations"`
	ConfidenceScore float64  `json:"confidence_score"`
	CreatedAt       string   `json:"created_at"`
}
