package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/jobs"
	"google.golang.org/genai"
)

// GeminiService generates embedding vectors using the Google Gemini API.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
}

// NewGeminiService creates a new Gemini embedding service instance.
func NewGeminiService(geminiConfig *common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	if geminiConfig.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required for embedding generation (set GOOGLE_API_KEY, COLLIGO_GEMINI_API_KEY, or gemini.api_key in config)")
	}

	if geminiConfig.EmbedModelName == "" {
		geminiConfig.EmbedModelName = "gemini-embedding-001"
	}
	if geminiConfig.EmbedDimension <= 0 {
		geminiConfig.EmbedDimension = 768
	}

	timeout, err := time.ParseDuration(geminiConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", geminiConfig.Timeout, err)
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:  geminiConfig,
		logger:  logger,
		client:  client,
		timeout: timeout,
	}

	logger.Debug().
		Str("embed_model", geminiConfig.EmbedModelName).
		Int("embed_dimension", geminiConfig.EmbedDimension).
		Dur("timeout", timeout).
		Msg("Gemini embedding service initialized successfully")

	return service, nil
}

// GenerateEmbeddings generates one embedding vector per input text. Vectors
// come back positionally: result[i] embeds texts[i]. The whole batch fails
// if any single embedding fails, so callers never store a partial set.
func (s *GeminiService) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty for embedding generation")
	}

	startTime := time.Now()
	s.logger.Debug().
		Int("text_count", len(texts)).
		Msg("Starting embedding generation")

	embeddings := make([][]float32, 0, len(texts))
	for i, text := range texts {
		embedding, err := s.generateEmbedding(ctx, text)
		if err != nil {
			s.logger.Error().
				Err(err).
				Int("index", i).
				Msg("Embedding generation failed")
			return nil, s.classifyEmbedError(err)
		}
		embeddings = append(embeddings, embedding)
	}

	s.logger.Debug().
		Int("text_count", len(texts)).
		Int("embedding_dim", s.config.EmbedDimension).
		Dur("duration", time.Since(startTime)).
		Msg("Embedding generation completed")

	return embeddings, nil
}

// Close releases service resources.
func (s *GeminiService) Close() error {
	return nil
}

// generateEmbedding embeds a single text with the configured output
// dimensionality and validates the returned vector.
func (s *GeminiService) generateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding generation")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outputDim := int32(s.config.EmbedDimension)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	result, err := s.client.Models.EmbedContent(timeoutCtx, s.config.EmbedModelName,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, embeddingConfig)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}

	if embedding == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}

	if len(embedding) != s.config.EmbedDimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.config.EmbedDimension, len(embedding))
	}

	return embedding, nil
}

// classifyEmbedError maps a Gemini API failure onto the error taxonomy.
// The genai SDK surfaces quota errors as RESOURCE_EXHAUSTED message text.
func (s *GeminiService) classifyEmbedError(err error) error {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "RESOURCE_EXHAUSTED") || strings.Contains(errStr, "quota"):
		return jobs.WrapError(jobs.ErrorKindRateLimited, err)
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "403") || strings.Contains(errStr, "API key"):
		return jobs.WrapError(jobs.ErrorKindAuthError, err)
	case isRetryableError(err):
		return jobs.WrapError(jobs.ErrorKindTimeout, err)
	default:
		return jobs.WrapError(jobs.ErrorKindApiError, err)
	}
}
