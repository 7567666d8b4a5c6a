package main

import (
	"swim-rules-rag/internal/mcptool"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the analysis tools over MCP stdio",
	Long: `mcp runs the swim-rules-analyzer MCP server on stdin and stdout with the
analyze_situation, lookup_rules and extract_rules tools. Logs go to stderr or
the configured log file.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := newAnalysisService(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer cleanup()

	return mcptool.NewServer(svc, svc, logger.Named("mcp")).ServeStdio()
}
