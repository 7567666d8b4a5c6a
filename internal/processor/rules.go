package processor

import (
	"fmt"
	"regexp"
	"strings"

	"swim-rules-rag/internal/models"
)

// maxLetterTitle is the length at which sub-subsection content is cut when used as a title
const maxLetterTitle = 50

// Heading patterns, tried in this order on each trimmed line. Separators
// accept Unicode space characters such as U+00A0 as well as ASCII whitespace.
var (
	// "101.1 STARTS", "102 GENERAL — Some description"
	topLevelRe = regexp.MustCompile(`^(\d+(?:\.\d+)*[A-Z]?)[\s\p{Z}]+([A-Z][^.\n]*?)(?:[\s\p{Z}]*—[\s\p{Z}]*(.*))?$`)
	// ".1 Equipment", ".2A The Start — description"
	subsectionRe = regexp.MustCompile(`^\.(\d+[A-Z]?)[\s\p{Z}]+(.+?)(?:[\s\p{Z}]*—[\s\p{Z}]*(.*))?$`)
	// "A Once all swimmers are ..."
	letterRe = regexp.MustCompile(`^([A-Z])[\s\p{Z}]+(.+)$`)
)

type keywordRule[T any] struct {
	value    T
	keywords []string
}

// Ordered: the first rule with a matching keyword wins
var categoryRules = []keywordRule[models.Category]{
	{models.CategoryStarts, []string{"start", "starting"}},
	{models.CategoryTurns, []string{"turn", "finish"}},
	{models.CategoryStroke, []string{"stroke", "breaststroke", "butterfly", "backstroke", "freestyle"}},
	{models.CategoryRelays, []string{"relay"}},
	{models.CategoryEquipment, []string{"equipment", "pool"}},
	{models.CategoryOfficials, []string{"official", "referee", "judge"}},
	{models.CategoryViolations, []string{"disqualif", "violation"}},
}

var strokeRules = []keywordRule[models.StrokeType]{
	{models.StrokeBreaststroke, []string{"breaststroke", "breast"}},
	{models.StrokeButterfly, []string{"butterfly", "fly"}},
	{models.StrokeBackstroke, []string{"backstroke", "back"}},
	{models.StrokeFreestyle, []string{"freestyle", "free"}},
	{models.StrokeMedley, []string{"medley", "individual medley", "im"}},
	{models.StrokeRelay, []string{"relay"}},
	{models.StrokeStarts, []string{"start", "starting"}},
	{models.StrokeTurns, []string{"turn", "turning"}},
	{models.StrokeGeneral, []string{"general", "equipment", "officials"}},
}

// ExtractRules scans one page of rulebook text and returns a record for every
// recognised heading line, in text order. Lines that match no heading pattern
// are skipped; the function never fails.
func ExtractRules(text string, page int) []models.RuleRecord {
	var (
		rules       []models.RuleRecord
		section     string
		topLevelNum string
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := topLevelRe.FindStringSubmatch(line); m != nil {
			number := m[1]
			title := strings.TrimSpace(m[2])

			topLevelNum = strings.SplitN(number, ".", 2)[0]
			section = title

			rules = append(rules, newRuleRecord(number, title, classifyText(title, m[3]), section, page))
			continue
		}

		if m := subsectionRe.FindStringSubmatch(line); m != nil && topLevelNum != "" {
			number := fmt.Sprintf("%s.%s", topLevelNum, m[1])
			title := strings.TrimSpace(m[2])

			rules = append(rules, newRuleRecord(number, title, classifyText(title, m[3]), section, page))
			continue
		}

		if m := letterRe.FindStringSubmatch(line); m != nil && topLevelNum != "" && len(rules) > 0 {
			base := rules[len(rules)-1].RuleNumber
			// A letter only extends dotted numbers, never a bare top-level one
			if !strings.Contains(base, ".") {
				continue
			}

			content := strings.TrimSpace(m[2])
			rules = append(rules, newRuleRecord(base+m[1], truncateTitle(content), classifyText(content, ""), section, page))
		}
	}

	return rules
}

func newRuleRecord(number, title, classified, section string, page int) models.RuleRecord {
	return models.RuleRecord{
		RuleID:     "rule_" + number,
		RuleNumber: number,
		RuleTitle:  title,
		Category:   Categorize(classified),
		StrokeType: IdentifyStroke(classified),
		Section:    section,
		Page:       page,
		ChunkType:  models.ChunkTypeRule,
	}
}

// classifyText builds the lower-cased text the keyword tables are matched against
func classifyText(title, description string) string {
	return strings.ToLower(title + " " + description)
}

func truncateTitle(content string) string {
	runes := []rune(content)
	if len(runes) > maxLetterTitle {
		return string(runes[:maxLetterTitle]) + "..."
	}
	return content
}

// Categorize returns the first category whose keywords occur in text, or General Rules
func Categorize(text string) models.Category {
	text = strings.ToLower(text)
	for _, rule := range categoryRules {
		if containsAny(text, rule.keywords) {
			return rule.value
		}
	}
	return models.CategoryGeneral
}

// IdentifyStroke returns the first stroke type whose keywords occur in text, or the empty stroke type
func IdentifyStroke(text string) models.StrokeType {
	text = strings.ToLower(text)
	for _, rule := range strokeRules {
		if containsAny(text, rule.keywords) {
			return rule.value
		}
	}
	return ""
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// FindRelevantRule picks the record a chunk of text belongs to: a rule number
// appearing verbatim in the chunk, then a title appearing case-insensitively,
// then the first record of the page. It reports false only when records is empty.
func FindRelevantRule(chunk string, records []models.RuleRecord) (models.RuleRecord, bool) {
	for _, r := range records {
		if strings.Contains(chunk, r.RuleNumber) {
			return r, true
		}
	}

	chunkLower := strings.ToLower(chunk)
	for _, r := range records {
		if strings.Contains(chunkLower, strings.ToLower(r.RuleTitle)) {
			return r, true
		}
	}

	if len(records) > 0 {
		return records[0], true
	}

	return models.RuleRecord{}, false
}
