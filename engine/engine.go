package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/dlmm-scout/core"
	"github.com/becomeliminal/dlmm-scout/logger"
	"github.com/becomeliminal/dlmm-scout/memory"
	"github.com/becomeliminal/dlmm-scout/observability"
)

// Completer streams a model completion as text fragments.
type Completer interface {
	StreamText(ctx context.Context, system string, messages []core.Message, onText func(string) error) error
}

// Relay builds prompts for validated chat requests and streams the model's
// reply back to the caller.
type Relay struct {
	completer Completer
	memory    memory.Manager         // Optional: past analyses for the same client
	metrics   *observability.Metrics // Optional
	logger    *zap.Logger
}

// Option configures the relay.
type Option func(*Relay)

// WithMemory configures the relay with a memory manager.
func WithMemory(m memory.Manager) Option {
	return func(r *Relay) {
		r.memory = m
	}
}

// WithMetrics records stream outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithLogger sets the relay's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Relay) {
		r.logger = l
	}
}

// NewRelay creates a relay. A nil completer means the upstream credential
// is not configured; every Stream call then fails with a ConfigurationError.
func NewRelay(completer Completer, opts ...Option) *Relay {
	r := &Relay{completer: completer}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.OrNop(r.logger).Named("relay")
	return r
}

// Input is one relay invocation.
type Input struct {
	// Request is the validated chat request.
	Request *core.ChatRequest

	// ClientID identifies the caller for memory namespacing.
	ClientID string

	// RequestID correlates log lines.
	RequestID string
}

// Output summarizes a finished stream.
type Output struct {
	Text   string
	Chunks int
}

// Stream sends the request upstream and calls onText for every fragment in
// order. If onText returns an error the upstream call is abandoned and that
// error is returned. Cancelling ctx aborts the upstream call.
func (r *Relay) Stream(ctx context.Context, in *Input, onText func(string) error) (*Output, error) {
	if r.completer == nil {
		return nil, &core.ConfigurationError{Setting: "ANTHROPIC_API_KEY"}
	}

	req := in.Request
	log := r.logger.With(zap.String("request_id", in.RequestID), zap.String("client", in.ClientID))

	var pool poolSummary
	var enrichment string
	if req.HasPool() {
		pool = summarizePool(req.PoolData)
		enrichment = r.retrieveMemories(ctx, log, in.ClientID, pool, req.PortfolioStyle)
	}

	system := BuildSystemPrompt(req.HasPool(), req.PortfolioStyle, enrichment)
	messages := BuildMessages(req)

	log.Debug("relaying chat request",
		zap.Int("messages", len(messages)),
		zap.Bool("pool", req.HasPool()),
		zap.String("style", req.PortfolioStyle))

	started := time.Now()
	out := &Output{}
	var text strings.Builder

	err := r.completer.StreamText(ctx, system, messages, func(fragment string) error {
		out.Chunks++
		text.WriteString(fragment)
		return onText(fragment)
	})
	out.Text = text.String()

	outcome := streamOutcome(err)
	r.metrics.ObserveStream(outcome, started, out.Chunks)
	if err != nil {
		log.Warn("chat stream failed",
			zap.String("outcome", outcome),
			zap.Int("chunks", out.Chunks),
			zap.Error(err))
		return out, err
	}

	log.Info("chat stream finished",
		zap.Int("chunks", out.Chunks),
		zap.Duration("duration", time.Since(started)))

	if req.HasPool() && r.memory != nil {
		r.recordAnalysis(context.WithoutCancel(ctx), log, in.ClientID, pool, req.PortfolioStyle, out.Text)
	}
	return out, nil
}

func (r *Relay) retrieveMemories(ctx context.Context, log *zap.Logger, clientID string, pool poolSummary, style string) string {
	if r.memory == nil {
		return ""
	}
	query := memoryQuery(pool, style)
	enrichment, err := r.memory.Retrieve(ctx, clientID, query)
	if err != nil {
		// Non-fatal, continue without memories.
		log.Warn("memory retrieval failed", zap.Error(err))
		return ""
	}
	return enrichment
}

func (r *Relay) recordAnalysis(ctx context.Context, log *zap.Logger, clientID string, pool poolSummary, style, text string) {
	err := r.memory.RecordAnalysis(ctx, clientID, &memory.Analysis{
		PoolName:    pool.Name,
		PoolAddress: pool.Address,
		BinStep:     pool.BinStep,
		Style:       style,
		Response:    text,
	})
	if err != nil {
		log.Warn("memory recording failed", zap.Error(err))
	}
}

func memoryQuery(pool poolSummary, style string) string {
	return fmt.Sprintf("Pool: %s\nBin step: %d\nStrategy: %s", pool.Name, pool.BinStep, style)
}

func streamOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
