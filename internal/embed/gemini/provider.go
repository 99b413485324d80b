// Package gemini embeds text with the Gemini embedding API.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const taskRetrievalDocument = "RETRIEVAL_DOCUMENT"

// Models is the subset of the genai models service used here.
type Models interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config selects the model and output size.
type Config struct {
	APIKey    string
	Model     string
	Dimension int
}

// Provider implements embed.Provider.
type Provider struct {
	models    Models
	model     string
	dimension int32
	logger    *zap.Logger
}

// New dials the Gemini API with an API key.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return NewWithModels(client.Models, cfg, logger), nil
}

// NewWithModels builds a provider over an existing models service.
func NewWithModels(models Models, cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		models:    models,
		model:     cfg.Model,
		dimension: int32(cfg.Dimension), //nolint:gosec // validated positive and small
		logger:    logger,
	}
}

// EmbedBatch sends every text as one content entry of a single request.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	cfg := &genai.EmbedContentConfig{TaskType: taskRetrievalDocument}
	if p.dimension > 0 {
		dim := p.dimension
		cfg.OutputDimensionality = &dim
	}

	result, err := p.models.EmbedContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if result == nil {
		return nil, errors.New("no embedding returned from API")
	}

	vectors := make([][]float32, 0, len(result.Embeddings))
	for i, e := range result.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors = append(vectors, e.Values)
	}
	p.logger.Debug("embedded batch", zap.Int("texts", len(texts)), zap.String("model", p.model))
	return vectors, nil
}
