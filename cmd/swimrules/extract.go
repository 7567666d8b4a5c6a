package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"swim-rules-rag/internal/models"
	"swim-rules-rag/internal/processor"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Print the rules found in a PDF or text file as YAML",
	Long: `extract runs rule identification over a rulebook PDF (rule pages only,
unless --all-pages) or over a plain text file treated as a single page, and
prints the rule records as YAML. With no file, text is read from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().Int("page", 0, "page number for text input")
	extractCmd.Flags().Bool("all-pages", false, "extract from every PDF page instead of the configured rule pages")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	page, _ := cmd.Flags().GetInt("page")
	allPages, _ := cmd.Flags().GetBool("all-pages")

	var records []models.RuleRecord
	switch {
	case len(args) == 0:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		records = processor.ExtractRules(string(data), page)

	case strings.EqualFold(filepath.Ext(args[0]), ".pdf"):
		p := processor.NewPDFProcessor(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, logger.Named("processor"))
		p.PageStart, p.PageEnd = cfg.Ingest.PageStart, cfg.Ingest.PageEnd
		if allPages {
			p.PageStart, p.PageEnd = 0, math.MaxInt
		}
		rulebook, err := p.ProcessRulebook(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		records = rulebook.Rules

	default:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		records = processor.ExtractRules(string(data), page)
	}

	if records == nil {
		records = []models.RuleRecord{}
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	return enc.Close()
}
