package dto

import (
	"io"

	"github.com/noah-isme/filescan-registry/internal/models"
)

// SearchRequest selects occurrences by name or hash, optionally narrowed by tags.
// Name and Hash are mutually exclusive; with neither set every name matches.
type SearchRequest struct {
	Name   *string  `json:"name,omitempty"`
	Hash   *string  `json:"hash,omitempty"`
	Tags   []string `json:"tags,omitempty" validate:"omitempty,dive,max=255"`
	Offset int      `json:"offset" validate:"gte=0"`
	Limit  int      `json:"limit" validate:"gte=0"`
}

// SearchQuery captures the query string of the search route.
type SearchQuery struct {
	Name   *string `form:"name"`
	Hash   *string `form:"hash"`
	Tags   string  `form:"tags"`
	Offset int     `form:"offset"`
	Limit  int     `form:"limit"`
}

// SearchResult is one page of matching occurrences.
type SearchResult struct {
	Total  int                 `json:"total"`
	Offset int                 `json:"offset"`
	Limit  int                 `json:"limit"`
	Items  []models.Occurrence `json:"items"`
}

// FileDetail is a file record together with one page of its occurrences.
type FileDetail struct {
	File   *models.FileRecord  `json:"file"`
	Total  int                 `json:"total"`
	Offset int                 `json:"offset"`
	Limit  int                 `json:"limit"`
	Items  []models.Occurrence `json:"items"`
}

// IngestRequest registers content seen under Name in scan ScanID.
type IngestRequest struct {
	ScanID  string    `validate:"required,max=255"`
	Name    string    `validate:"required,max=1024"`
	Content io.Reader `validate:"-"`
}

// CreateTagRequest is the payload for creating a tag.
type CreateTagRequest struct {
	Text string `json:"text" validate:"required,max=255"`
}
