package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"swim-rules-rag/internal/analysis"
	"swim-rules-rag/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const previewLength = 300

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Search the indexed rules by similarity",
	Long: `lookup embeds a query and prints the most similar rule chunks with their
metadata. Without -q it starts an interactive prompt.`,
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().StringP("query", "q", "", "query to run (non-interactive mode)")
	lookupCmd.Flags().IntP("results", "n", analysis.DefaultResults, "number of rules to return (1-10)")

	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query, _ := cmd.Flags().GetString("query")
	n, _ := cmd.Flags().GetInt("results")

	svc, cleanup, err := newAnalysisService(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if query != "" {
		return lookupOnce(ctx, svc, os.Stdout, query, n)
	}

	runInteractiveLookup(ctx, svc, os.Stdin, os.Stdout, n)
	return nil
}

func lookupOnce(ctx context.Context, svc *analysis.Service, w io.Writer, query string, n int) error {
	startTime := time.Now()
	rules, err := svc.LookupRules(ctx, query, n)
	if err != nil {
		return err
	}
	logger.Debug("lookup processed", zap.Duration("elapsed", time.Since(startTime)))

	fmt.Fprint(w, formatLookup(query, rules))
	return nil
}

func runInteractiveLookup(ctx context.Context, svc *analysis.Service, in io.Reader, w io.Writer, n int) {
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(w, "Swim Rules Lookup - search the rule database (type 'exit' to quit)")
	fmt.Fprintln(w, "Commands: /n <1-10> sets the number of results")

	for {
		fmt.Fprint(w, "\n> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			break
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(strings.ToLower(input), "/n ") {
			v, err := strconv.Atoi(strings.TrimSpace(input[3:]))
			if err != nil {
				fmt.Fprintf(w, "Error: %v\n", err)
				continue
			}
			n = analysis.ClampResults(v)
			fmt.Fprintf(w, "Returning %d results\n", n)
			continue
		}

		fmt.Fprint(w, "Searching swim rules... ")
		if err := lookupOnce(ctx, svc, w, input, n); err != nil {
			fmt.Fprintf(w, "\rError: %v\n", err)
		}
	}
}

func formatLookup(query string, rules []models.RetrievedRule) string {
	var sb strings.Builder

	if len(rules) == 0 {
		sb.WriteString(fmt.Sprintf("\nNo rules found for %q\n", query))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("\nFound %d rules for %q\n", len(rules), query))
	for i, r := range rules {
		sb.WriteString(fmt.Sprintf("\n%d. Rule %s: %s\n", i+1, r.Identifier(), r.Title()))
		sb.WriteString(fmt.Sprintf("   Category: %s | Stroke: %s | Page: %d | Similarity: %.3f\n",
			r.CategoryName(), orDefault(r.Metadata.StrokeType, "General"), r.Metadata.Page, r.RelevanceScore))

		content := strings.Join(strings.Fields(r.Content), " ")
		if runes := []rune(content); len(runes) > previewLength {
			content = string(runes[:previewLength]) + "..."
		}
		sb.WriteString("   " + content + "\n")
	}
	return sb.String()
}

func orDefault(s, fallback string) string {
	if s == "" || s == "none" {
		return fallback
	}
	return s
}
