package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates that a requested memory record was not found.
var ErrNotFound = errors.New("memory not found")

// Record is a durable, user-scoped text fact retrievable by search or
// recency. It is immutable except for the access-tracking fields, which are
// updated as a side effect of retrieval.
type Record struct {
	ID          int64     `json:"id"`
	Content     string    `json:"content"`
	UserID      string    `json:"user_id"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
	AccessCount int       `json:"access_count"`
}

// Store defines persistence + retrieval for memory records. Implementations
// must scope every operation strictly to the given user id and serialize
// writes; reads may run concurrently.
type Store interface {
	// Store inserts a new record, indexing its content for text search.
	// The insert is atomic: no partial record is ever visible.
	Store(ctx context.Context, content, userID string, tags []string) (int64, error)

	// Search returns up to limit records relevant to query. Queries shorter
	// than three characters (trimmed) fall back to the most recently
	// accessed records. Every returned record has its access stats touched
	// before it is handed to the caller. A non-empty tags slice filters to
	// records sharing at least one tag.
	Search(ctx context.Context, query, userID string, limit int, tags []string) ([]Record, error)

	// All returns every record for a user, newest-created-first, without
	// touching access stats.
	All(ctx context.Context, userID string) ([]Record, error)

	// Delete removes a record from storage and the search index atomically.
	Delete(ctx context.Context, id int64) error

	// Close releases the underlying resources.
	Close() error
}
