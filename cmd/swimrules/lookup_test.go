package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"swim-rules-rag/internal/models"
)

func TestFormatLookup(t *testing.T) {
	out := formatLookup("false start", []models.RetrievedRule{
		{
			Content: "A swimmer who starts\n  before the signal   shall be disqualified.",
			Metadata: models.ChunkMetadata{
				RuleNumber: "101.1.2",
				RuleTitle:  "False Start",
				Category:   "Starts",
				StrokeType: "starts",
				Page:       14,
			},
			RelevanceScore: 0.8123,
		},
		{Content: strings.Repeat("x", 400), Metadata: models.ChunkMetadata{StrokeType: "none"}},
	})

	assert.Contains(t, out, `Found 2 rules for "false start"`)
	assert.Contains(t, out, "1. Rule 101.1.2: False Start")
	assert.Contains(t, out, "Category: Starts | Stroke: starts | Page: 14 | Similarity: 0.812")
	assert.Contains(t, out, "A swimmer who starts before the signal shall be disqualified.")
	assert.Contains(t, out, "2. Rule Unknown: No title")
	assert.Contains(t, out, "Category: General | Stroke: General")
	assert.Contains(t, out, strings.Repeat("x", previewLength)+"...")

	assert.Contains(t, formatLookup("q", nil), `No rules found for "q"`)
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "General", orDefault("", "General"))
	assert.Equal(t, "General", orDefault("none", "General"))
	assert.Equal(t, "relay", orDefault("relay", "General"))
}
