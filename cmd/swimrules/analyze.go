package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"swim-rules-rag/internal/analysis"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [scenario]",
	Short: "Rule on a single swimming scenario",
	Long: `analyze retrieves the rules most relevant to a scenario and asks the model
whether it is ALLOWED or a DISQUALIFICATION. The report is printed as JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().Bool("no-record", false, "do not log the scenario to the SQLite catalog")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	noRecord, _ := cmd.Flags().GetBool("no-record")
	scenario := strings.Join(args, " ")

	svc, cleanup, err := newAnalysisService(cmd.Context(), !noRecord)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := svc.AnalyzeSituation(cmd.Context(), scenario)
	if err != nil {
		return fmt.Errorf("failed to analyze scenario: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(analysis.Normalize(report))
}
