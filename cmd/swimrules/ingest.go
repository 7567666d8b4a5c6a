package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"swim-rules-rag/internal/database"
	"swim-rules-rag/internal/models"
	"swim-rules-rag/internal/processor"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const storeBatchSize = 50

var sampleQueries = []string{
	"What are the rules for backstroke start?",
	"How should a breaststroke turn be performed?",
	"What constitutes a false start?",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the rulebook, glossary and guidance into the vector store",
	Long: `ingest reads the rule pages of the rulebook PDF, tags each chunk with the
rule it belongs to, adds the glossary and interpretation guidance, embeds every
chunk with Ollama and stores the result in PostgreSQL. Extracted rules are also
written to the SQLite catalog.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("pdf", "", "rulebook PDF (default from ingest.rulebook)")
	ingestCmd.Flags().Bool("reset", true, "drop existing chunks before indexing; with --reset=false chunks are upserted by ID")
	ingestCmd.Flags().Bool("skip-catalog", false, "do not write extracted rules to the SQLite catalog")
	ingestCmd.Flags().Bool("smoke-test", true, "run sample queries after indexing")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pdfPath, _ := cmd.Flags().GetString("pdf")
	if pdfPath == "" {
		pdfPath = cfg.Ingest.Rulebook
	}
	if _, err := os.Stat(pdfPath); err != nil {
		return fmt.Errorf("rulebook not found: %w", err)
	}
	reset, _ := cmd.Flags().GetBool("reset")
	skipCatalog, _ := cmd.Flags().GetBool("skip-catalog")
	smokeTest, _ := cmd.Flags().GetBool("smoke-test")

	logger.Info("processing rulebook",
		zap.String("pdf", pdfPath),
		zap.String("embedding_model", cfg.Ollama.EmbeddingModel),
		zap.Int("max_concurrent", cfg.Embedding.MaxConcurrent),
		zap.Int("page_start", cfg.Ingest.PageStart),
		zap.Int("page_end", cfg.Ingest.PageEnd))

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if reset {
		err = db.Reset(ctx)
	} else {
		err = db.Initialize(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("database initialized", zap.Bool("reset", reset))

	pdfProcessor := processor.NewPDFProcessor(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, logger.Named("processor"))
	pdfProcessor.PageStart = cfg.Ingest.PageStart
	pdfProcessor.PageEnd = cfg.Ingest.PageEnd

	startTime := time.Now()
	rulebook, err := pdfProcessor.ProcessRulebook(ctx, pdfPath)
	if err != nil {
		return fmt.Errorf("failed to process PDF: %w", err)
	}
	chunks := rulebook.Chunks

	for _, s := range []processor.Supplement{
		processor.GlossarySupplement(cfg.Ingest.Glossary),
		processor.GuidanceSupplement(cfg.Ingest.Guidance),
	} {
		extra, err := pdfProcessor.SupplementalChunks(s)
		if err != nil {
			return err
		}
		chunks = append(chunks, extra...)
	}
	logger.Info("created chunks",
		zap.Int("pages", len(rulebook.Pages)),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(startTime)))

	if !skipCatalog {
		if err := catalogRules(ctx, rulebook.Rules); err != nil {
			return err
		}
	}

	client, err := newOllamaClient()
	if err != nil {
		return err
	}
	embedder := newEmbedder(client)

	embeddingStart := time.Now()
	progressFunc := func(processed, total int) {
		elapsedTime := time.Since(embeddingStart)
		estimatedTotal := elapsedTime * time.Duration(total) / time.Duration(processed)
		estimatedRemaining := estimatedTotal - elapsedTime

		if processed%25 == 0 || processed == total {
			logger.Info("embedding progress",
				zap.Int("processed", processed),
				zap.Int("total", total),
				zap.String("percent", fmt.Sprintf("%.1f%%", float64(processed)/float64(total)*100)),
				zap.Duration("remaining", estimatedRemaining.Round(time.Second)))
		}
	}

	embeddedChunks, err := embedder.EmbedBatchWithProgress(ctx, chunks, progressFunc)
	if err != nil {
		return fmt.Errorf("failed to create embeddings: %w", err)
	}

	storeStart := time.Now()
	for i := 0; i < len(embeddedChunks); i += storeBatchSize {
		end := min(i+storeBatchSize, len(embeddedChunks))
		if err := db.StoreChunks(ctx, embeddedChunks[i:end]); err != nil {
			return err
		}
		logger.Debug("stored chunks", zap.Int("stored", end), zap.Int("total", len(embeddedChunks)))
	}

	count, err := db.Count(ctx)
	if err != nil {
		return err
	}

	logger.Info("ingest complete",
		zap.Duration("total", time.Since(startTime)),
		zap.Duration("chunking", embeddingStart.Sub(startTime)),
		zap.Duration("embedding", storeStart.Sub(embeddingStart)),
		zap.Duration("storage", time.Since(storeStart)),
		zap.Int("stored_chunks", count))

	printChunkStatistics(embeddedChunks)

	if smokeTest {
		runSmokeTest(ctx, db, embedder)
	}
	return nil
}

func catalogRules(ctx context.Context, records []models.RuleRecord) error {
	catalog, err := database.NewCatalog(ctx, cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer catalog.Close()

	if err := catalog.UpsertRules(ctx, records); err != nil {
		return err
	}
	logger.Info("catalogued rules", zap.Int("rules", len(records)), zap.String("path", cfg.SQLite.Path))
	return nil
}

type queryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// runSmokeTest runs the sample queries against the fresh index and logs the top hit
func runSmokeTest(ctx context.Context, db *database.DB, embedder queryEmbedder) {
	for _, q := range sampleQueries {
		embedding, err := embedder.EmbedText(ctx, q)
		if err != nil {
			logger.Warn("smoke test query failed", zap.String("query", q), zap.Error(err))
			continue
		}

		results, err := db.QuerySimilar(ctx, embedding, 1)
		if err != nil || len(results) == 0 {
			logger.Warn("smoke test returned no results", zap.String("query", q), zap.Error(err))
			continue
		}

		logger.Info("smoke test",
			zap.String("query", q),
			zap.String("rule", results[0].Identifier()),
			zap.String("category", results[0].CategoryName()),
			zap.Float64("relevance", results[0].RelevanceScore))
	}
}

// printChunkStatistics logs how chunks are spread over chunk types, categories and strokes
func printChunkStatistics(chunks []models.TextChunk) {
	if len(chunks) == 0 {
		return
	}

	var totalLength int
	chunkTypeMap := make(map[string]int)
	categoryMap := make(map[string]int)
	strokeMap := make(map[string]int)
	unmatched := 0

	for _, chunk := range chunks {
		totalLength += len(chunk.Content)
		chunkTypeMap[chunk.Metadata.ChunkType]++
		categoryMap[chunk.Metadata.Category]++
		strokeMap[chunk.Metadata.StrokeType]++
		if chunk.Metadata.RuleNumber == "unknown" {
			unmatched++
		}
	}

	logger.Info("chunk statistics",
		zap.Int("total_chunks", len(chunks)),
		zap.String("average_length", fmt.Sprintf("%.1f", float64(totalLength)/float64(len(chunks)))),
		zap.Int("without_rule", unmatched))

	logBreakdown("chunk type", chunkTypeMap)
	logBreakdown("category", categoryMap)
	logBreakdown("stroke", strokeMap)
}

func logBreakdown(name string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		logger.Info(name+" breakdown", zap.String(name, k), zap.Int("chunks", counts[k]))
	}
}
