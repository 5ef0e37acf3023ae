package models

import (
	"time"
)

// CaptureRecord holds the raw HTML captured for one bookmark, either
// posted by the capture client or downloaded by the batch fetcher. It is
// the input to markdown generation.
type CaptureRecord struct {
	ID         string    `json:"id" badgerhold:"key"`
	BookmarkID string    `json:"bookmark_id" badgerhold:"index"`
	SourceURL  string    `json:"source_url"`
	HTML       string    `json:"html"`
	SizeBytes  int       `json:"size_bytes"`
	CapturedAt time.Time `json:"captured_at"`
}

// PageContent holds the extracted markdown for one bookmark.
type PageContent struct {
	ID             string    `json:"id" badgerhold:"key"`
	BookmarkID     string    `json:"bookmark_id" badgerhold:"index"`
	SourceURL      string    `json:"source_url"`
	Title          string    `json:"title,omitempty"`
	Markdown       string    `json:"markdown"`
	CharacterCount int       `json:"character_count"`
	WordCount      int       `json:"word_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// QAPair is a single question/answer pair generated from page content.
type QAPair struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// QARecord holds the Q&A pairs and their embedding vectors for one bookmark.
// Embeddings are stored positionally: Embeddings[i] belongs to Pairs[i].
type QARecord struct {
	ID         string      `json:"id" badgerhold:"key"`
	BookmarkID string      `json:"bookmark_id" badgerhold:"index"`
	Pairs      []QAPair    `json:"pairs"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
	Model      string      `json:"model,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
