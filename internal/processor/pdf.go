package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"swim-rules-rag/internal/models"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Supplement describes a plain-text document indexed alongside the rulebook
type Supplement struct {
	Path         string
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
	Metadata     models.ChunkMetadata
}

// GlossarySupplement returns the glossary document settings for path
func GlossarySupplement(path string) Supplement {
	return Supplement{
		Path:         path,
		ChunkSize:    300,
		ChunkOverlap: 30,
		Separators:   supplementSeparators,
		Metadata: models.ChunkMetadata{
			RuleID:     "glossary",
			RuleNumber: "GLOSSARY",
			RuleTitle:  "Glossary Terms",
			Category:   string(models.CategoryDefinitions),
			StrokeType: "none",
			Section:    "Glossary",
			ChunkType:  models.ChunkTypeGlossary,
			Source:     path,
		},
	}
}

// GuidanceSupplement returns the interpretation guidance document settings for path
func GuidanceSupplement(path string) Supplement {
	return Supplement{
		Path:         path,
		ChunkSize:    400,
		ChunkOverlap: 50,
		Separators:   supplementSeparators,
		Metadata: models.ChunkMetadata{
			RuleID:     "guidance",
			RuleNumber: "GUIDANCE",
			RuleTitle:  "Interpretation Guidance",
			Category:   string(models.CategoryInterpreting),
			StrokeType: "none",
			Section:    "Guidance",
			ChunkType:  models.ChunkTypeGuidance,
			Source:     path,
		},
	}
}

// PDFProcessor turns a rulebook PDF into rule-tagged chunks
type PDFProcessor struct {
	ChunkSize     int
	ChunkOverlap  int
	PageStart     int
	PageEnd       int
	MaxConcurrent int

	logger *zap.Logger
}

// NewPDFProcessor creates a new PDF processor
func NewPDFProcessor(chunkSize, chunkOverlap int, logger *zap.Logger) *PDFProcessor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap <= 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PDFProcessor{
		ChunkSize:     chunkSize,
		ChunkOverlap:  chunkOverlap,
		PageStart:     13,
		PageEnd:       50,
		MaxConcurrent: 4,
		logger:        logger,
	}
}

// ExtractPages extracts the plain text of every page of a PDF file. Page
// numbers are zero-based; pages that cannot be read are skipped.
func (p *PDFProcessor) ExtractPages(filePath string) ([]models.Page, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	pages := make([]models.Page, 0, total)

	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Warn("skipping unreadable page", zap.Int("page", i-1), zap.Error(err))
			continue
		}

		pages = append(pages, models.Page{Number: i - 1, Text: text})
	}

	return pages, nil
}

// SelectPages keeps the pages whose number lies in [start, end]
func SelectPages(pages []models.Page, start, end int) []models.Page {
	var selected []models.Page
	for _, page := range pages {
		if page.Number >= start && page.Number <= end {
			selected = append(selected, page)
		}
	}
	return selected
}

// CollectRules runs rule extraction over every page and stamps each record with source
func CollectRules(pages []models.Page, source string) []models.RuleRecord {
	var records []models.RuleRecord
	for _, page := range pages {
		for _, r := range ExtractRules(page.Text, page.Number) {
			r.Source = source
			records = append(records, r)
		}
	}
	return records
}

// Rulebook is the result of processing the rule pages of a rulebook PDF
type Rulebook struct {
	Source string
	Pages  []models.Page
	Rules  []models.RuleRecord
	Chunks []models.TextChunk
}

// ProcessRulebook extracts the pages of the PDF at path, keeps the rule pages
// in [PageStart, PageEnd] and returns their rule records and chunks.
func (p *PDFProcessor) ProcessRulebook(ctx context.Context, path string) (*Rulebook, error) {
	pages, err := p.ExtractPages(path)
	if err != nil {
		return nil, err
	}
	return p.ProcessPages(ctx, pages, path)
}

// ProcessPages builds a Rulebook from already extracted pages
func (p *PDFProcessor) ProcessPages(ctx context.Context, pages []models.Page, source string) (*Rulebook, error) {
	selected := SelectPages(pages, p.PageStart, p.PageEnd)

	chunks, err := p.CreateEnhancedChunks(ctx, selected, source)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk %s: %w", source, err)
	}

	p.logger.Debug("processed rulebook",
		zap.String("source", source),
		zap.Int("pages", len(pages)),
		zap.Int("rule_pages", len(selected)),
		zap.Int("chunks", len(chunks)))

	return &Rulebook{
		Source: source,
		Pages:  selected,
		Rules:  CollectRules(selected, source),
		Chunks: chunks,
	}, nil
}

// ChunkID derives a stable chunk ID from the chunk's source, page and position,
// so re-indexing the same document produces the same IDs.
func ChunkID(source string, page, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s#page=%d#chunk=%d", source, page, index)).String()
}

type pageChunks struct {
	records []models.RuleRecord
	texts   []string
}

// CreateEnhancedChunks splits each page into chunks and attaches the metadata
// of the most relevant rule found on that page. Chunks keep page order.
func (p *PDFProcessor) CreateEnhancedChunks(ctx context.Context, pages []models.Page, source string) ([]models.TextChunk, error) {
	chunker, err := NewChunker(p.ChunkSize, p.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	results := make([]pageChunks, len(pages))

	g, ctx := errgroup.WithContext(ctx)
	if p.MaxConcurrent > 0 {
		g.SetLimit(p.MaxConcurrent)
	}

	for i, page := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			texts, err := chunker.Split(page.Text)
			if err != nil {
				return fmt.Errorf("page %d: %w", page.Number, err)
			}

			results[i] = pageChunks{
				records: ExtractRules(page.Text, page.Number),
				texts:   texts,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var chunks []models.TextChunk
	for i, page := range pages {
		for _, text := range results[i].texts {
			var meta models.ChunkMetadata
			if rule, ok := FindRelevantRule(text, results[i].records); ok {
				meta = ruleMetadata(rule, source)
			} else {
				meta = defaultMetadata(page.Number, len(chunks), source)
			}
			meta.Page = page.Number

			chunks = append(chunks, models.TextChunk{
				ID:       ChunkID(source, page.Number, len(chunks)),
				Content:  text,
				Metadata: meta,
			})
		}
	}

	return chunks, nil
}

// SupplementalChunks chunks a plain-text supplement. A missing file yields no chunks.
func (p *PDFProcessor) SupplementalChunks(s Supplement) ([]models.TextChunk, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		p.logger.Info("supplement not found, skipping", zap.String("path", s.Path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.Path, err)
	}

	chunker, err := NewChunker(s.ChunkSize, s.ChunkOverlap, s.Separators...)
	if err != nil {
		return nil, err
	}

	texts, err := chunker.Split(string(data))
	if err != nil {
		return nil, err
	}

	chunks := make([]models.TextChunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, models.TextChunk{
			ID:       ChunkID(s.Path, 0, i),
			Content:  text,
			Metadata: s.Metadata,
		})
	}
	return chunks, nil
}

func ruleMetadata(rule models.RuleRecord, source string) models.ChunkMetadata {
	stroke := string(rule.StrokeType)
	if stroke == "" {
		stroke = "none"
	}
	section := rule.Section
	if section == "" {
		section = "unknown"
	}
	if rule.Source != "" {
		source = rule.Source
	}

	return models.ChunkMetadata{
		RuleID:     rule.RuleID,
		RuleNumber: rule.RuleNumber,
		RuleTitle:  rule.RuleTitle,
		Category:   string(rule.Category),
		StrokeType: stroke,
		Section:    section,
		ChunkType:  rule.ChunkType,
		Source:     source,
	}
}

// defaultMetadata is attached to chunks from pages with no recognised rule headings
func defaultMetadata(page, index int, source string) models.ChunkMetadata {
	return models.ChunkMetadata{
		RuleID:     fmt.Sprintf("page_%d_chunk_%d", page, index),
		RuleNumber: "unknown",
		RuleTitle:  "General Content",
		Category:   string(models.CategoryGeneral),
		StrokeType: "none",
		Section:    "General",
		ChunkType:  models.ChunkTypeRule,
		Source:     source,
	}
}
