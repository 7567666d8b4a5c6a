package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"swim-rules-rag/internal/models"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// OllamaEmbedder generates embeddings using Ollama API
type OllamaEmbedder struct {
	Client        *api.Client
	Model         string
	MaxRetries    int
	RetryDelay    time.Duration
	Timeout       time.Duration
	MaxConcurrent int

	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates an Ollama API client for host, or for OLLAMA_HOST when host is empty
func NewClient(host string) (*api.Client, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = u
	}
	return api.NewClient(hostURL, http.DefaultClient), nil
}

// NewOllamaEmbedder creates a new Ollama embedder
func NewOllamaEmbedder(client *api.Client, model string, logger *zap.Logger) *OllamaEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OllamaEmbedder{
		Client:        client,
		Model:         model,
		MaxRetries:    3,
		RetryDelay:    time.Second,
		Timeout:       time.Second * 30,
		MaxConcurrent: 3, // Limit concurrent requests based on hardware
		limiter:       rate.NewLimiter(rate.Inf, 1),
		logger:        logger,
	}
}

// SetRateLimit caps embedding requests per second. Zero or less removes the cap.
func (e *OllamaEmbedder) SetRateLimit(perSecond float64) {
	if perSecond <= 0 {
		e.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// EmbedText generates an embedding for a text
func (e *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	var embedding []float64
	var err error

	for retries := 0; retries <= e.MaxRetries; retries++ {
		if retries > 0 {
			e.logger.Debug("retrying embedding", zap.Int("attempt", retries), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(retries) * e.RetryDelay):
			}
		}

		if err = e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		embedding, err = e.createEmbedding(ctx, text)
		if err == nil {
			return embedding, nil
		}
	}

	return nil, fmt.Errorf("failed to create embedding after %d retries: %w", e.MaxRetries, err)
}

// createEmbedding is a helper function to create a single embedding
func (e *OllamaEmbedder) createEmbedding(ctx context.Context, text string) ([]float64, error) {
	req := api.EmbeddingRequest{
		Model:   e.Model,
		Prompt:  text,
		Options: map[string]any{},
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	resp, err := e.Client.Embeddings(ctxWithTimeout, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("model %s returned an empty embedding", e.Model)
	}

	return resp.Embedding, nil
}

// EmbedBatch generates embeddings for multiple chunks in parallel
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, chunks []models.TextChunk) ([]models.TextChunk, error) {
	return e.EmbedBatchWithProgress(ctx, chunks, nil)
}

// EmbedBatchWithProgress generates embeddings with progress reporting. The
// first failure cancels the remaining requests.
func (e *OllamaEmbedder) EmbedBatchWithProgress(ctx context.Context, chunks []models.TextChunk,
	progressFunc func(processed, total int)) ([]models.TextChunk, error) {

	g, ctx := errgroup.WithContext(ctx)
	if e.MaxConcurrent > 0 {
		g.SetLimit(e.MaxConcurrent)
	}

	var mu sync.Mutex
	processed := 0
	total := len(chunks)

	for i := range chunks {
		g.Go(func() error {
			embedding, err := e.EmbedText(ctx, chunks[i].Content)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %s: %w", chunks[i].ID, err)
			}

			// Each goroutine owns chunks[i]; the mutex only guards the progress counter
			chunks[i].Embedding = embedding

			mu.Lock()
			processed++
			if progressFunc != nil {
				progressFunc(processed, total)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return chunks, nil
}
