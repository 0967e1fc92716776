package ai

import (
	"context"
	"fmt"
	"sync"

	"manual-qa-backend/models"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// Gemini batch embedding endpoint caps the request size; 64 keeps each
// request comfortably under the payload limit for manual-sized chunks.
const embedBatchSize = 64

// EmbeddingClient embeds texts with Google Generative AI
// (text-embedding-004 by default). The genai client is created lazily on
// first use so that a bad API key fails the index build, not process
// startup.
type EmbeddingClient struct {
	apiKey      string
	model       string
	rateLimiter *rate.Limiter

	mu     sync.Mutex
	client *genai.Client
}

func NewEmbeddingClient(apiKey, model string) *EmbeddingClient {
	return &EmbeddingClient{
		apiKey: apiKey,
		model:  model,
		// Free tier allows ~1500 embedding RPM; stay well under it.
		rateLimiter: rate.NewLimiter(rate.Limit(10), 5),
	}
}

func (ec *EmbeddingClient) Model() string { return ec.model }

func (ec *EmbeddingClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.client != nil {
		return ec.client, nil
	}
	if ec.apiKey == "" {
		return nil, fmt.Errorf("%w: missing GEMINI_API_KEY", models.ErrEmbeddingModel)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(ec.apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingModel, err)
	}
	ec.client = client
	return client, nil
}

// EmbedBatch returns one vector per input text, in input order. Vectors
// are returned as the provider produced them; callers normalize.
func (ec *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tracer := otel.Tracer("embedding-client")
	ctx, span := tracer.Start(ctx, "embeddings.embed_batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("embeddings.texts", len(texts)),
		attribute.String("embeddings.model", ec.model),
	)

	client, err := ec.ensureClient(ctx)
	if err != nil {
		span.SetAttributes(attribute.Bool("embeddings.error", true))
		return nil, err
	}
	model := client.EmbeddingModel(ec.model)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := ec.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		batch := model.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}
		resp, err := model.BatchEmbedContents(ctx, batch)
		if err != nil {
			span.SetAttributes(attribute.Bool("embeddings.error", true))
			return nil, fmt.Errorf("batch embed failed at offset %d: %w", start, err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("batch embed returned %d vectors, want %d", len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("%w: empty embedding in batch at offset %d", models.ErrEmbeddingModel, start)
			}
			out = append(out, emb.Values)
		}
	}

	span.SetAttributes(attribute.Bool("embeddings.success", true))
	return out, nil
}

// EmbedOne is a convenience for single-text queries.
func (ec *EmbeddingClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := ec.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (ec *EmbeddingClient) Close() error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.client != nil {
		err := ec.client.Close()
		ec.client = nil
		return err
	}
	return nil
}
