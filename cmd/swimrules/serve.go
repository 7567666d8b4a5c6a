package main

import (
	"fmt"
	"os"

	"swim-rules-rag/internal/analysis"
	"swim-rules-rag/internal/mcptool"
	"swim-rules-rag/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the situation analysis HTTP API",
	Long: `serve starts the HTTP API. By default scenarios are analyzed in process;
with --mcp the analysis runs in a "swimrules mcp" subprocess reached over stdio.
When the analysis backend cannot be started the server still runs and the
analysis endpoints answer 503.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().Bool("mcp", false, "analyze through an MCP tool server subprocess")

	if err := viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	useMCP, _ := cmd.Flags().GetBool("mcp")

	var (
		analyzer analysis.Analyzer
		lookup   server.RuleLookup
	)

	svc, cleanup, err := newAnalysisService(ctx, true)
	if err != nil {
		logger.Error("analysis service unavailable, serving with limited functionality", zap.Error(err))
	} else {
		defer cleanup()
		analyzer = svc
		lookup = svc
	}

	if useMCP {
		remote, err := dialToolServer(cmd)
		if err != nil {
			logger.Error("MCP client unavailable, serving with limited functionality", zap.Error(err))
			analyzer = nil
		} else {
			defer remote.Close()
			analyzer = remote
		}
	}

	srv, err := server.New(analyzer, lookup, server.Options{
		Addr:              cfg.Server.Addr,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		MaxScenarioLength: cfg.Analysis.MaxScenarioLength,
	}, logger.Named("http"))
	if err != nil {
		return err
	}

	return srv.ListenAndServe(ctx)
}

// dialToolServer starts this binary's mcp command as the tool server
func dialToolServer(cmd *cobra.Command) (*mcptool.Client, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}

	args := []string{"mcp"}
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	return mcptool.DialStdio(cmd.Context(), exe, args, os.Environ(), logger.Named("mcp"))
}
