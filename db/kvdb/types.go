package kvdb

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound   = errors.New("key not found")
	ErrInvalidKey = errors.New("invalid key")
)

type InvalidKeyError struct {
	Key    string
	Reason string
}

type NotFoundError struct {
	Key string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid key %s: %s", e.Key, e.Reason)
}

func (e *InvalidKeyError) Is(target error) bool {
	return target == ErrInvalidKey
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("key not found: %s", e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SourceFingerprint records what a document source looked like the last time
// it was indexed, so a rebuild can report which sources changed.
type SourceFingerprint struct {
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	LastIndexed time.Time `json:"last_indexed"`
}

// BuildRecord summarizes one completed index build.
type BuildRecord struct {
	BuildID       string    `json:"build_id"`
	StartedAt     time.Time `json:"started_at"`
	Duration      string    `json:"duration"`
	DocumentCount int       `json:"document_count"`
	WordCount     int       `json:"word_count"`
	PostingCount  int       `json:"posting_count"`
	IndexBytes    int       `json:"index_bytes"`
	WarningCount  int       `json:"warning_count"`
}
