package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/becomeliminal/dlmm-scout/logger"
	"github.com/becomeliminal/dlmm-scout/memory"
)

// ChromemStore wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database.
type ChromemStore struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection // Per-owner collections
	mu          sync.RWMutex
	logger      *zap.Logger
}

// New creates a new chromem-based store.
func New(l *zap.Logger) *ChromemStore {
	return &ChromemStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		logger:      logger.OrNop(l).Named("chromem"),
	}
}

// collection returns the owner's collection, creating it when create is set.
// Each owner gets their own collection for namespace isolation.
func (s *ChromemStore) collection(ownerID string, create bool) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[ownerID]
	s.mu.RUnlock()

	if exists || !create {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, exists := s.collections[ownerID]; exists {
		return col, nil
	}

	name := "owner_" + ownerID
	if ownerID == "" {
		name = "global"
	}

	// Embeddings are always supplied, so no embedding func is needed.
	col, err := s.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	s.collections[ownerID] = col
	return col, nil
}

// Store saves a memory with its embedding.
func (s *ChromemStore) Store(ctx context.Context, mem memory.Memory) error {
	if len(mem.Embedding()) == 0 {
		return fmt.Errorf("memory %s has no embedding", mem.ID())
	}

	col, err := s.collection(mem.OwnerID(), true)
	if err != nil {
		return err
	}

	stored, err := serializeMemory(mem)
	if err != nil {
		return fmt.Errorf("serialize memory: %w", err)
	}

	doc := chromem.Document{
		ID:        mem.ID(),
		Content:   stored.ContentJSON,
		Embedding: mem.Embedding(),
		Metadata:  stored.Metadata,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.logger.Debug("stored memory",
		zap.String("id", mem.ID()),
		zap.String("owner", mem.OwnerID()),
		zap.String("type", mem.Type()))
	return nil
}

// Query retrieves memories by vector similarity.
func (s *ChromemStore) Query(ctx context.Context, ownerID string, embedding []float32, limit int) ([]memory.Memory, error) {
	col, err := s.collection(ownerID, false)
	if err != nil || col == nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size.
	n := min(limit, col.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	memories := make([]memory.Memory, 0, len(results))
	for i, result := range results {
		mem, err := deserializeMemory(result)
		if err != nil {
			s.logger.Warn("skipping stored memory", zap.Int("rank", i+1), zap.Error(err))
			continue
		}
		memories = append(memories, mem)
	}
	return memories, nil
}

// Count returns how many memories ownerID has.
func (s *ChromemStore) Count(ownerID string) int {
	col, _ := s.collection(ownerID, false)
	if col == nil {
		return 0
	}
	return col.Count()
}

// Close releases resources. chromem-go keeps everything in memory.
func (s *ChromemStore) Close() error {
	return nil
}

// StoredMemory represents a serialized memory for storage.
type StoredMemory struct {
	Type        string
	ContentJSON string
	Metadata    map[string]string
}

func serializeMemory(mem memory.Memory) (*StoredMemory, error) {
	contentBytes, err := json.Marshal(mem.Content())
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}

	metadata := map[string]string{
		"type":       mem.Type(),
		"owner_id":   mem.OwnerID(),
		"created_at": mem.CreatedAt().Format(time.RFC3339),
	}
	for k, v := range mem.Metadata() {
		if str, ok := v.(string); ok {
			metadata[k] = str
		} else if b, err := json.Marshal(v); err == nil {
			metadata[k] = string(b)
		}
	}

	return &StoredMemory{
		Type:        mem.Type(),
		ContentJSON: string(contentBytes),
		Metadata:    metadata,
	}, nil
}

func deserializeMemory(result chromem.Result) (memory.Memory, error) {
	switch memType := result.Metadata["type"]; memType {
	case "analysis":
		return deserializeAnalysisMemory(result)
	default:
		return nil, fmt.Errorf("unknown memory type: %s", memType)
	}
}

func deserializeAnalysisMemory(result chromem.Result) (*memory.AnalysisMemory, error) {
	var content memory.AnalysisContent
	if err := json.Unmarshal([]byte(result.Content), &content); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339, result.Metadata["created_at"])

	metadata := make(map[string]interface{})
	for k, v := range result.Metadata {
		if k != "type" && k != "owner_id" && k != "created_at" {
			metadata[k] = v
		}
	}

	return memory.NewAnalysisMemoryFromStorage(
		result.ID,
		result.Metadata["owner_id"],
		createdAt,
		result.Embedding,
		content,
		metadata,
	), nil
}
