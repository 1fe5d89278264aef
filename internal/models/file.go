package models

import (
	"time"

	"github.com/noah-isme/filescan-registry/pkg/hashtype"
)

// FileRecord is the canonical entry for one piece of content, keyed by its sha256.
type FileRecord struct {
	ID        string    `db:"id" json:"id"`
	SHA256    string    `db:"sha256" json:"sha256"`
	SHA1      string    `db:"sha1" json:"sha1"`
	MD5       string    `db:"md5" json:"md5"`
	Size      int64     `db:"size" json:"size"`
	MimeType  string    `db:"mime_type" json:"mimeType"`
	Path      string    `db:"path" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Occurrence is a named appearance of a FileRecord within one scan.
type Occurrence struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ScanID    string    `db:"scan_id" json:"scanId"`
	FileID    string    `db:"file_id" json:"fileId"`
	SHA256    string    `db:"sha256" json:"sha256"`
	Size      int64     `db:"size" json:"size"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Tags      []Tag     `db:"-" json:"tags"`
}

// Tag labels occurrences.
type Tag struct {
	ID   int64  `db:"id" json:"id"`
	Text string `db:"text" json:"text"`
}

// OccurrenceFilter narrows occurrence lookups. HashType, when set, takes
// precedence over Name; Tags are intersected.
type OccurrenceFilter struct {
	Name         *string
	HashType     hashtype.Type
	HashValue    string
	Tags         []string
	DistinctName bool
}

// Pagination contains offset pagination metadata returned in list responses.
type Pagination struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}
