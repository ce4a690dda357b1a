package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Analysis is one finished pool analysis, as handed to Manager.RecordAnalysis.
type Analysis struct {
	PoolName    string
	PoolAddress string
	BinStep     int
	Style       string
	Response    string
}

// AnalysisMemory stores a pool analysis so later analyses for the same
// client can refer back to it.
type AnalysisMemory struct {
	id        string
	ownerID   string
	createdAt time.Time
	embedding []float32
	metadata  map[string]interface{}

	PoolName    string
	PoolAddress string
	BinStep     int
	Style       string
	Summary     string
}

// NewAnalysisMemory creates an AnalysisMemory owned by ownerID.
func NewAnalysisMemory(ownerID string, a *Analysis) *AnalysisMemory {
	return &AnalysisMemory{
		id:        uuid.New().String(),
		ownerID:   ownerID,
		createdAt: time.Now(),
		metadata: map[string]interface{}{
			"pool_address": a.PoolAddress,
			"style":        a.Style,
		},
		PoolName:    a.PoolName,
		PoolAddress: a.PoolAddress,
		BinStep:     a.BinStep,
		Style:       a.Style,
		Summary:     strings.TrimSpace(a.Response),
	}
}

// NewAnalysisMemoryFromStorage rebuilds an AnalysisMemory read back from a Store.
func NewAnalysisMemoryFromStorage(
	id string,
	ownerID string,
	createdAt time.Time,
	embedding []float32,
	content AnalysisContent,
	metadata map[string]interface{},
) *AnalysisMemory {
	return &AnalysisMemory{
		id:          id,
		ownerID:     ownerID,
		createdAt:   createdAt,
		embedding:   embedding,
		metadata:    metadata,
		PoolName:    content.PoolName,
		PoolAddress: content.PoolAddress,
		BinStep:     content.BinStep,
		Style:       content.Style,
		Summary:     content.Summary,
	}
}

// AnalysisContent is the serialized body of an AnalysisMemory.
type AnalysisContent struct {
	PoolName    string `json:"pool_name"`
	PoolAddress string `json:"pool_address"`
	BinStep     int    `json:"bin_step"`
	Style       string `json:"style"`
	Summary     string `json:"summary"`
}

func (a *AnalysisMemory) ID() string {
	return a.id
}

func (a *AnalysisMemory) OwnerID() string {
	return a.ownerID
}

func (a *AnalysisMemory) Type() string {
	return "analysis"
}

func (a *AnalysisMemory) Content() interface{} {
	return AnalysisContent{
		PoolName:    a.PoolName,
		PoolAddress: a.PoolAddress,
		BinStep:     a.BinStep,
		Style:       a.Style,
		Summary:     a.Summary,
	}
}

func (a *AnalysisMemory) Metadata() map[string]interface{} {
	return a.metadata
}

func (a *AnalysisMemory) CreatedAt() time.Time {
	return a.createdAt
}

func (a *AnalysisMemory) Embedding() []float32 {
	return a.embedding
}

func (a *AnalysisMemory) SetEmbedding(emb []float32) {
	a.embedding = emb
}

// Format renders the analysis as a short prompt entry.
func (a *AnalysisMemory) Format(ctx FormatContext) string {
	header := fmt.Sprintf("%s (bin step %d, %s strategy, analysed %s)",
		a.PoolName, a.BinStep, styleOrDefault(a.Style), a.createdAt.UTC().Format("2006-01-02"))
	if a.Summary == "" {
		return header
	}
	return header + "\n  Summary: " + truncate(a.Summary, max(ctx.MaxLength-len(header), 0))
}

// FormatForEmbedding returns the text embedded for similarity search.
func (a *AnalysisMemory) FormatForEmbedding() string {
	return fmt.Sprintf("Pool: %s\nBin step: %d\nStrategy: %s", a.PoolName, a.BinStep, a.Style)
}

func styleOrDefault(s string) string {
	if s == "" {
		return "unspecified"
	}
	return s
}

// truncate truncates a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
