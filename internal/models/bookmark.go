package models

import (
	"time"
)

// BookmarkStatus tracks where a bookmark sits in the capture pipeline.
type BookmarkStatus string

const (
	BookmarkStatusPending    BookmarkStatus = "pending"
	BookmarkStatusProcessing BookmarkStatus = "processing"
	BookmarkStatusComplete   BookmarkStatus = "complete"
	BookmarkStatusError      BookmarkStatus = "error"
)

// Bookmark is one captured page awaiting or holding enrichment output.
// Once a bookmark leaves pending, the pipeline processor is the sole
// writer of its status.
type Bookmark struct {
	ID        string         `json:"id" badgerhold:"key"`
	URL       string         `json:"url"`
	Title     string         `json:"title,omitempty"`
	Status    BookmarkStatus `json:"status" badgerhold:"index"`
	CreatedAt time.Time      `json:"created_at" badgerhold:"index"`
	UpdatedAt time.Time      `json:"updated_at"`
}
