package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// ExtractResult is the output of content extraction for one page.
type ExtractResult struct {
	Markdown       string
	Title          string
	CharacterCount int
	WordCount      int
}

// Extractor converts raw HTML into markdown plus page metadata.
type Extractor interface {
	Extract(html string, sourceURL string) (*ExtractResult, error)
}

// FetchResult is the outcome of a single URL download.
type FetchResult struct {
	Body        string
	SizeBytes   int
	StatusCode  int
	ContentType string
}

// Fetcher downloads a single URL with a per-fetch timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// QAService generates question/answer pairs from markdown content.
type QAService interface {
	GenerateQAPairs(ctx context.Context, markdown string) ([]models.QAPair, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// EmbeddingService generates embedding vectors for a batch of texts.
type EmbeddingService interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}
