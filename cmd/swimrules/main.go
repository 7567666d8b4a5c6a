package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"swim-rules-rag/internal/analysis"
	"swim-rules-rag/internal/config"
	"swim-rules-rag/internal/database"
	"swim-rules-rag/internal/embedding"
	"swim-rules-rag/internal/llm"
	"swim-rules-rag/internal/logging"

	"github.com/ollama/ollama/api"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "swimrules",
	Short: "Swimming rules extraction, retrieval and situation analysis",
	Long: `swimrules indexes a swimming rulebook into a vector store and rules on
swimming scenarios with a local language model.

ingest builds the index, analyze and lookup query it, serve exposes an HTTP API,
and mcp serves the analysis tools over stdio.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Read(viper.GetViper()); err != nil {
			return err
		}

		c, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = c

		l, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
		if err != nil {
			return err
		}
		logger = l

		if used := viper.ConfigFileUsed(); used != "" {
			logger.Debug("using config file", zap.String("path", used))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./swimrules.yaml or ~/.config/swimrules/swimrules.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("pg", "", "PostgreSQL connection string")
	flags.String("ollama", "", "Ollama host (default uses OLLAMA_HOST env var)")
	flags.String("model", "", "Ollama model for analysis")
	flags.String("embedding-model", "", "Ollama model for embeddings")

	bindFlag("log.level", "log-level")
	bindFlag("postgres.url", "pg")
	bindFlag("ollama.host", "ollama")
	bindFlag("ollama.model", "model")
	bindFlag("ollama.embedding_model", "embedding-model")
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	config.Setup(viper.GetViper(), cfgFile)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newOllamaClient() (*api.Client, error) {
	client, err := embedding.NewClient(cfg.Ollama.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	return client, nil
}

func newEmbedder(client *api.Client) *embedding.OllamaEmbedder {
	e := embedding.NewOllamaEmbedder(client, cfg.Ollama.EmbeddingModel, logger.Named("embedding"))
	e.MaxConcurrent = cfg.Embedding.MaxConcurrent
	e.MaxRetries = cfg.Embedding.MaxRetries
	e.Timeout = cfg.Embedding.Timeout
	e.SetRateLimit(cfg.Embedding.RequestsPerSecond)
	return e
}

func openStore(ctx context.Context) (*database.DB, error) {
	db, err := database.NewDB(ctx, cfg.Postgres.URL, cfg.Postgres.Dimensions)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// newAnalysisService wires the embedder, vector store, model and scenario
// log. The returned func releases the connections.
func newAnalysisService(ctx context.Context, record bool) (*analysis.Service, func(), error) {
	client, err := newOllamaClient()
	if err != nil {
		return nil, nil, err
	}

	db, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){db.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	generator := llm.NewOllamaAnalyzer(client, cfg.Ollama.Model, logger.Named("llm"))
	generator.Temperature = cfg.Ollama.Temperature
	generator.NumPredict = cfg.Ollama.NumPredict

	var recorder analysis.Recorder
	if record {
		catalog, err := database.NewCatalog(ctx, cfg.SQLite.Path)
		if err != nil {
			logger.Warn("scenario log disabled", zap.String("path", cfg.SQLite.Path), zap.Error(err))
		} else {
			closers = append(closers, func() { catalog.Close() })
			recorder = catalog
		}
	}

	svc := analysis.NewService(newEmbedder(client), db, generator, recorder, logger.Named("analysis"))
	svc.Results = cfg.Analysis.Results
	return svc, cleanup, nil
}
