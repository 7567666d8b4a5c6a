package processor

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swim-rules-rag/internal/models"
)

func ruleNumbers(records []models.RuleRecord) []string {
	numbers := make([]string, 0, len(records))
	for _, r := range records {
		numbers = append(numbers, r.RuleNumber)
	}
	return numbers
}

func TestExtractRules_TopLevel(t *testing.T) {
	records := ExtractRules("101.1 STARTS", 14)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "rule_101.1", r.RuleID)
	assert.Equal(t, "101.1", r.RuleNumber)
	assert.Equal(t, "STARTS", r.RuleTitle)
	assert.Equal(t, "STARTS", r.Section)
	assert.Equal(t, models.CategoryStarts, r.Category)
	assert.Equal(t, models.StrokeStarts, r.StrokeType)
	assert.Equal(t, 14, r.Page)
	assert.Equal(t, models.ChunkTypeRule, r.ChunkType)
}

func TestExtractRules_Hierarchy(t *testing.T) {
	records := ExtractRules("101 GENERAL\n.1 Equipment\nA Some detail text here", 3)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"101", "101.1", "101.1A"}, ruleNumbers(records))
	assert.Equal(t, []string{"rule_101", "rule_101.1", "rule_101.1A"},
		[]string{records[0].RuleID, records[1].RuleID, records[2].RuleID})

	assert.Equal(t, "Equipment", records[1].RuleTitle)
	assert.Equal(t, models.CategoryEquipment, records[1].Category)
	assert.Equal(t, "Some detail text here", records[2].RuleTitle)

	for _, r := range records {
		assert.Equal(t, "GENERAL", r.Section)
		assert.Equal(t, 3, r.Page)
	}
}

func TestExtractRules_Description(t *testing.T) {
	records := ExtractRules("102 STROKES — breaststroke kick requirements", 0)
	require.Len(t, records, 1)

	assert.Equal(t, "102", records[0].RuleNumber)
	assert.Equal(t, "STROKES", records[0].RuleTitle)
	assert.Equal(t, models.CategoryStroke, records[0].Category)
	assert.Equal(t, models.StrokeBreaststroke, records[0].StrokeType)
}

func TestExtractRules_SubsectionUsesTopLevelInteger(t *testing.T) {
	text := strings.Join([]string{
		"101.5 RELAY TAKEOFFS",
		".2A Exchanges — relay swimmer leaves the block",
		"102 OFFICIALS",
		".3 Referee",
	}, "\n")

	records := ExtractRules(text, 0)

	assert.Equal(t, []string{"101.5", "101.2A", "102", "102.3"}, ruleNumbers(records))
	assert.Equal(t, "RELAY TAKEOFFS", records[1].Section)
	assert.Equal(t, "OFFICIALS", records[3].Section)
	assert.Equal(t, models.CategoryRelays, records[1].Category)
	assert.Equal(t, models.CategoryOfficials, records[3].Category)
}

func TestExtractRules_EmptyInput(t *testing.T) {
	assert.Empty(t, ExtractRules("", 1))
	assert.Empty(t, ExtractRules("\n   \n\t\n", 1))
	assert.Empty(t, ExtractRules("just some prose that is not a heading.", 1))
}

func TestExtractRules_NoLetterBeforeTopLevel(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "letter line first",
			text: "A Swimmer shall remain in the lane\n101 GENERAL",
			want: []string{"101"},
		},
		{
			name: "subsection without top level",
			text: ".1 Equipment\nA detail",
			want: []string{},
		},
		{
			name: "letter after bare top level",
			text: "101 GENERAL\nA detail text",
			want: []string{"101"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ruleNumbers(ExtractRules(tt.text, 0)))
		})
	}
}

func TestExtractRules_LettersChainOnLastRecord(t *testing.T) {
	records := ExtractRules("101 GENERAL\n.1 Equipment\nA First detail\nB Second detail", 0)
	assert.Equal(t, []string{"101", "101.1", "101.1A", "101.1AB"}, ruleNumbers(records))
}

func TestExtractRules_TitleTruncation(t *testing.T) {
	long := "Once all swimmers are in the water the starter shall give the signal"
	records := ExtractRules("101 GENERAL\n.1 Start\nA "+long, 0)
	require.Len(t, records, 3)

	title := records[2].RuleTitle
	assert.True(t, strings.HasSuffix(title, "..."))
	assert.Equal(t, long[:50]+"...", title)
	assert.Len(t, strings.TrimSuffix(title, "..."), 50)

	short := ExtractRules("101 GENERAL\n.1 Start\nA Short content", 0)
	assert.Equal(t, "Short content", short[2].RuleTitle)

	exact := strings.Repeat("x", 50)
	atLimit := ExtractRules("101 GENERAL\n.1 Start\nA "+exact, 0)
	assert.Equal(t, exact, atLimit[2].RuleTitle)
}

func TestExtractRules_IgnoresUnmatchedLines(t *testing.T) {
	text := "101 GENERAL\nthis line is prose and is skipped\n.1 Equipment"
	assert.Equal(t, []string{"101", "101.1"}, ruleNumbers(ExtractRules(text, 0)))
}

func TestExtractRules_UnicodeSpaces(t *testing.T) {
	records := ExtractRules("101\u00a0GENERAL\n.1\u00a0Equipment\nA\u00a0Some detail text here", 0)
	require.Equal(t, []string{"101", "101.1", "101.1A"}, ruleNumbers(records))
	assert.Equal(t, "GENERAL", records[0].RuleTitle)
	assert.Equal(t, "Equipment", records[1].RuleTitle)
	assert.Equal(t, "Some detail text here", records[2].RuleTitle)

	described := ExtractRules("102\u2003STROKES\u00a0—\u00a0breaststroke kick", 0)
	require.Len(t, described, 1)
	assert.Equal(t, "STROKES", described[0].RuleTitle)
	assert.Equal(t, models.StrokeBreaststroke, described[0].StrokeType)
}

func TestExtractRules_IndependentCalls(t *testing.T) {
	first := ExtractRules("101 GENERAL", 0)
	require.Len(t, first, 1)

	// No top-level state leaks into the next call
	assert.Empty(t, ExtractRules(".1 Equipment", 1))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			records := ExtractRules("101 GENERAL\n.1 Equipment\nA Some detail text here", page)
			assert.Len(t, records, 3)
			assert.Equal(t, page, records[0].Page)
		}(i)
	}
	wg.Wait()
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		text string
		want models.Category
	}{
		{"false start and turn", models.CategoryStarts},
		{"turn judge", models.CategoryTurns},
		{"the finish", models.CategoryTurns},
		{"BUTTERFLY", models.CategoryStroke},
		{"relay exchanges", models.CategoryRelays},
		{"pool dimensions", models.CategoryEquipment},
		{"the referee", models.CategoryOfficials},
		{"disqualification procedure", models.CategoryViolations},
		{"swimwear", models.CategoryGeneral},
		{"", models.CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.text))
		})
	}
}

func TestIdentifyStroke(t *testing.T) {
	tests := []struct {
		text string
		want models.StrokeType
	}{
		{"breaststroke kick", models.StrokeBreaststroke},
		{"butterfly arms", models.StrokeButterfly},
		{"on the back", models.StrokeBackstroke},
		{"freestyle", models.StrokeFreestyle},
		{"individual medley order", models.StrokeMedley},
		{"swimmer position", models.StrokeMedley},
		{"relay", models.StrokeRelay},
		{"starting platform", models.StrokeStarts},
		{"turning", models.StrokeTurns},
		{"general", models.StrokeGeneral},
		{"lane lines", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IdentifyStroke(tt.text))
		})
	}
}

func TestFindRelevantRule(t *testing.T) {
	records := ExtractRules("101 GENERAL\n.1 Equipment\n.2 The Start", 0)
	require.Len(t, records, 3)

	t.Run("number beats title", func(t *testing.T) {
		// "The Start" (101.2) also matches by title
		got, ok := FindRelevantRule("... rule 101.1 applies to the start ...", records[1:])
		require.True(t, ok)
		assert.Equal(t, "101.1", got.RuleNumber)
	})

	t.Run("numbers match as substrings in list order", func(t *testing.T) {
		got, ok := FindRelevantRule("see 101.2", records)
		require.True(t, ok)
		assert.Equal(t, "101", got.RuleNumber)
	})

	t.Run("title case insensitive", func(t *testing.T) {
		got, ok := FindRelevantRule("rules for THE START of a race", records[1:])
		require.True(t, ok)
		assert.Equal(t, "101.2", got.RuleNumber)
	})

	t.Run("fallback to first", func(t *testing.T) {
		got, ok := FindRelevantRule("nothing related", records[1:])
		require.True(t, ok)
		assert.Equal(t, "101.1", got.RuleNumber)
	})

	t.Run("empty list", func(t *testing.T) {
		_, ok := FindRelevantRule("rule 101.1", nil)
		assert.False(t, ok)
	})
}
