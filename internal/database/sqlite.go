package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"swim-rules-rag/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a catalog lookup matches nothing
var ErrNotFound = errors.New("not found")

const ruleColumns = `rule_id, rule_number, rule_title, category, stroke_type, section, page, source, chunk_type`

// Catalog is the SQLite catalog of extracted rules and analyzed scenarios
type Catalog struct {
	db *sql.DB
}

// NewCatalog opens or creates the catalog database at path
func NewCatalog(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	c := NewCatalogFromDB(db)
	if err := c.Initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewCatalogFromDB wraps an open database handle
func NewCatalogFromDB(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// Initialize creates the catalog tables
func (c *Catalog) Initialize(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS rules (
			rule_id TEXT PRIMARY KEY,
			rule_number TEXT NOT NULL,
			rule_title TEXT,
			category TEXT NOT NULL,
			stroke_type TEXT,
			section TEXT,
			page INTEGER,
			source TEXT,
			chunk_type TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_number ON rules(rule_number)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_category ON rules(category)`,
		`CREATE TABLE IF NOT EXISTS scenarios (
			scenario_id TEXT PRIMARY KEY,
			scenario_text TEXT NOT NULL,
			decision TEXT NOT NULL,
			rationale TEXT,
			applicable_rules TEXT,
			confidence_score REAL,
			created_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create catalog schema: %w", err)
		}
	}
	return nil
}

// UpsertRules writes rule records in one transaction. A rule ID seen again
// replaces the earlier row.
func (c *Catalog) UpsertRules(ctx context.Context, records []models.RuleRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_id) DO UPDATE SET
			rule_number = excluded.rule_number,
			rule_title = excluded.rule_title,
			category = excluded.category,
			stroke_type = excluded.stroke_type,
			section = excluded.section,
			page = excluded.page,
			source = excluded.source,
			chunk_type = excluded.chunk_type,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare rule upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.RuleID, r.RuleNumber, r.RuleTitle, string(r.Category), string(r.StrokeType),
			r.Section, r.Page, r.Source, r.ChunkType); err != nil {
			return fmt.Errorf("failed to upsert rule %s: %w", r.RuleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}
	return nil
}

// GetRule returns the catalog entry for a rule number
func (c *Catalog) GetRule(ctx context.Context, ruleNumber string) (models.RuleRecord, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE rule_number = ? ORDER BY page LIMIT 1`, ruleNumber)

	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RuleRecord{}, fmt.Errorf("rule %s: %w", ruleNumber, ErrNotFound)
	}
	if err != nil {
		return models.RuleRecord{}, fmt.Errorf("failed to get rule %s: %w", ruleNumber, err)
	}
	return r, nil
}

// SearchRules finds rules whose number, title or section contains term
func (c *Catalog) SearchRules(ctx context.Context, term string, limit int) ([]models.RuleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.TrimSpace(term) + "%"

	rows, err := c.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM rules
		WHERE rule_number LIKE ? OR rule_title LIKE ? OR section LIKE ?
		ORDER BY page, rule_number
		LIMIT ?`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search rules: %w", err)
	}
	defer rows.Close()

	var records []models.RuleRecord
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return records, nil
}

// RecordScenario stores an analyzed scenario and returns the stored record
func (c *Catalog) RecordScenario(ctx context.Context, scenario string, result models.AnalysisResult) (models.ScenarioRecord, error) {
	citations := result.RuleCitations
	if citations == nil {
		citations = []string{}
	}
	applicable, err := json.Marshal(citations)
	if err != nil {
		return models.ScenarioRecord{}, fmt.Errorf("failed to encode citations: %w", err)
	}

	rec := models.ScenarioRecord{
		ID:              uuid.NewString(),
		Scenario:        scenario,
		Decision:        result.Decision,
		Rationale:       result.Rationale,
		RuleCitations:   citations,
		ConfidenceScore: result.ConfidenceScore,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO scenarios (scenario_id, scenario_text, decision, rationale, applicable_rules, confidence_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Scenario, string(rec.Decision), rec.Rationale, string(applicable), rec.ConfidenceScore, rec.CreatedAt)
	if err != nil {
		return models.ScenarioRecord{}, fmt.Errorf("failed to record scenario: %w", err)
	}
	return rec, nil
}

// RecentScenarios returns the most recently recorded scenarios, newest first
func (c *Catalog) RecentScenarios(ctx context.Context, limit int) ([]models.ScenarioRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT scenario_id, scenario_text, decision, rationale, applicable_rules, confidence_score, created_at
		FROM scenarios
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	var records []models.ScenarioRecord
	for rows.Next() {
		var (
			rec        models.ScenarioRecord
			decision   string
			applicable sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Scenario, &decision, &rec.Rationale, &applicable,
			&rec.ConfidenceScore, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}

		rec.Decision = models.Decision(decision)
		rec.RuleCitations = []string{}
		if applicable.Valid && applicable.String != "" {
			if err := json.Unmarshal([]byte(applicable.String), &rec.RuleCitations); err != nil {
				return nil, fmt.Errorf("failed to decode citations of scenario %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scenarios: %w", err)
	}
	return records, nil
}

// Close releases the database connection
func (c *Catalog) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (models.RuleRecord, error) {
	var (
		r               models.RuleRecord
		category        string
		title, stroke   sql.NullString
		section, source sql.NullString
		chunkType       sql.NullString
	)
	if err := row.Scan(&r.RuleID, &r.RuleNumber, &title, &category, &stroke,
		&section, &r.Page, &source, &chunkType); err != nil {
		return models.RuleRecord{}, err
	}

	r.RuleTitle = title.String
	r.Category = models.Category(category)
	r.StrokeType = models.StrokeType(stroke.String)
	r.Section = section.String
	r.Source = source.String
	r.ChunkType = chunkType.String
	return r, nil
}
