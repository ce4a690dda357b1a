package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/becomeliminal/dlmm-scout/logger"
)

// SimpleManager is the default Manager: embed, query the store, format.
type SimpleManager struct {
	store    Store
	embedder Embedder
	config   *Config
	logger   *zap.Logger
}

// NewSimpleManager creates a SimpleManager. A nil config uses DefaultConfig.
func NewSimpleManager(store Store, embedder Embedder, config *Config, l *zap.Logger) *SimpleManager {
	if config == nil {
		config = DefaultConfig
	}
	return &SimpleManager{
		store:    store,
		embedder: embedder,
		config:   config,
		logger:   logger.OrNop(l).Named("memory"),
	}
}

// Retrieve finds past analyses similar to query and returns them formatted.
func (m *SimpleManager) Retrieve(ctx context.Context, ownerID string, query string) (string, error) {
	if !m.config.Enabled {
		return "", nil
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	memories, err := m.store.Query(ctx, ownerID, embedding, m.config.MaxResults)
	if err != nil {
		return "", fmt.Errorf("query store: %w", err)
	}

	m.logger.Debug("retrieved memories",
		zap.String("owner", ownerID),
		zap.Int("count", len(memories)))
	if len(memories) == 0 {
		return "", nil
	}

	return m.formatMemories(memories, ownerID, query), nil
}

// RecordAnalysis stores a finished analysis. Analyses with no text or no
// pool are skipped, as is anything beyond MaxMemoriesPerOwner.
func (m *SimpleManager) RecordAnalysis(ctx context.Context, ownerID string, analysis *Analysis) error {
	if !m.config.Enabled || analysis == nil {
		return nil
	}
	if strings.TrimSpace(analysis.Response) == "" || analysis.PoolName == "" {
		m.logger.Debug("analysis not worth storing", zap.String("owner", ownerID))
		return nil
	}
	if m.config.MaxMemoriesPerOwner > 0 && m.store.Count(ownerID) >= m.config.MaxMemoriesPerOwner {
		m.logger.Debug("memory cap reached", zap.String("owner", ownerID))
		return nil
	}

	mem := NewAnalysisMemory(ownerID, analysis)
	embedding, err := m.embedder.Embed(ctx, mem.FormatForEmbedding())
	if err != nil {
		return fmt.Errorf("embed analysis: %w", err)
	}
	mem.SetEmbedding(embedding)

	if err := m.store.Store(ctx, mem); err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}

	m.logger.Debug("stored analysis",
		zap.String("owner", ownerID),
		zap.String("pool", analysis.PoolName),
		zap.Int("bin_step", analysis.BinStep))
	return nil
}

func (m *SimpleManager) formatMemories(memories []Memory, ownerID string, query string) string {
	var b strings.Builder
	b.WriteString("=== PREVIOUS POOL ANALYSES FOR THIS USER ===\n")

	perMemory := max(m.config.MaxPromptChars/len(memories), 100)
	for i, mem := range memories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, mem.Format(FormatContext{
			OwnerID:   ownerID,
			Query:     query,
			MaxLength: perMemory,
		}))
	}
	return b.String()
}

// Config holds SimpleManager configuration.
type Config struct {
	// Enabled toggles the memory system. Default: false.
	Enabled bool

	// MaxResults is how many past analyses are retrieved. Default: 3.
	MaxResults int

	// MaxPromptChars bounds the formatted output across all memories. Default: 2000.
	MaxPromptChars int

	// MaxMemoriesPerOwner caps stored analyses per client. Default: 100.
	MaxMemoriesPerOwner int
}

// DefaultConfig is the opt-in default configuration.
var DefaultConfig = &Config{
	Enabled:             false,
	MaxResults:          3,
	MaxPromptChars:      2000,
	MaxMemoriesPerOwner: 100,
}
