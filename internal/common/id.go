package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewBookmarkID generates a unique bookmark ID with the "bm_" prefix
// Format: bm_<uuid>
func NewBookmarkID() string {
	return "bm_" + uuid.New().String()
}

// NewCaptureID generates a unique capture record ID with the "cap_" prefix
// Format: cap_<uuid>
func NewCaptureID() string {
	return "cap_" + uuid.New().String()
}

// NewContentID generates a unique content record ID with the "doc_" prefix
// Format: doc_<uuid>
func NewContentID() string {
	return "doc_" + uuid.New().String()
}

// NewSessionID generates a session identifier for the operation guard
func NewSessionID() string {
	return uuid.New().String()
}
