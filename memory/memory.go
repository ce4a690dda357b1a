package memory

import (
	"context"
	"time"
)

// Memory is a single stored item that can be formatted into a prompt.
type Memory interface {
	ID() string
	OwnerID() string // Client identifier (empty = global memory)
	Type() string    // Memory type identifier (e.g., "analysis")

	Content() interface{}
	Metadata() map[string]interface{}

	CreatedAt() time.Time

	Format(ctx FormatContext) string
	Embedding() []float32
	SetEmbedding([]float32)
}

// FormatContext lets Memory.Format size its output.
type FormatContext struct {
	OwnerID   string
	Query     string
	MaxLength int // Max characters for this memory's output
}

// Manager orchestrates memory operations for the relay.
//
// The relay decides WHEN memory is used: retrieval before a pool analysis is
// sent upstream, recording after the analysis streamed successfully. The
// Manager decides HOW: which memories match, how they are formatted, and
// which analyses are worth keeping.
type Manager interface {
	// Retrieve returns past analyses relevant to query, formatted for
	// prompt injection, or "" when there are none.
	Retrieve(ctx context.Context, ownerID string, query string) (string, error)

	// RecordAnalysis stores a finished pool analysis.
	RecordAnalysis(ctx context.Context, ownerID string, analysis *Analysis) error
}

// Store is the vector storage backend interface.
type Store interface {
	// Store saves a memory. The embedding must be set first.
	Store(ctx context.Context, mem Memory) error

	// Query returns up to limit memories of ownerID, most similar first.
	Query(ctx context.Context, ownerID string, embedding []float32, limit int) ([]Memory, error)

	// Count returns how many memories ownerID has.
	Count(ownerID string) int

	Close() error
}

// Embedder converts text to vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
