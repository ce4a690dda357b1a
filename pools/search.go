package pools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/dlmm-scout/core"
	"github.com/becomeliminal/dlmm-scout/logger"
	"github.com/becomeliminal/dlmm-scout/observability"
)

// Fetcher retrieves the pool groups matching a search term.
type Fetcher interface {
	Fetch(ctx context.Context, searchTerm string) (*core.PoolGroupResponse, error)
}

// Tokens are the BTC variants paired against SOL.
var Tokens = []string{"wbtc", "zbtc", "cbbtc"}

// SearchConfig tunes the multi-phase search.
type SearchConfig struct {
	// BroadenThreshold triggers the single-token phase when the direct phase
	// found fewer candidates than this.
	BroadenThreshold int

	// Delay is optional UX pacing before the first request.
	Delay time.Duration
}

// DefaultSearchConfig returns the production defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{BroadenThreshold: 6}
}

// SearchOptions describes one search invocation.
type SearchOptions struct {
	Style core.PortfolioStyle

	// Token restricts the search to one BTC variant ("wbtc", "zbtc", "cbbtc").
	Token string

	// OnStatus receives a human-readable progress message before fetching starts.
	OnStatus func(message string)
}

// SearchResult is the outcome of a search. Message is set when no pools survived.
type SearchResult struct {
	Pools       []core.Pool
	Message     string
	FailedTerms []string
	Broadened   bool
}

// Searcher runs the direct, broaden, and quality phases over a Fetcher.
type Searcher struct {
	fetcher Fetcher
	cfg     SearchConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithLogger sets the searcher's logger.
func WithLogger(l *zap.Logger) SearcherOption {
	return func(s *Searcher) {
		s.logger = l
	}
}

// WithMetrics records search outcomes.
func WithMetrics(m *observability.Metrics) SearcherOption {
	return func(s *Searcher) {
		s.metrics = m
	}
}

// NewSearcher creates a Searcher.
func NewSearcher(fetcher Fetcher, cfg SearchConfig, opts ...SearcherOption) *Searcher {
	s := &Searcher{fetcher: fetcher, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrNop(s.logger).Named("search")
	return s
}

// Search collects eligible pools. A failing search term counts as zero
// results; Search only returns an error when ctx is done.
func (s *Searcher) Search(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	token := strings.ToLower(strings.TrimSpace(opts.Token))
	if opts.OnStatus != nil {
		opts.OnStatus(statusMessage(opts.Style, token))
	}

	if s.cfg.Delay > 0 {
		timer := time.NewTimer(s.cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	directTerms, broadTerms := searchTerms(token)
	result := &SearchResult{}

	candidates := s.runPhase(ctx, directTerms, token, nil, result)
	if len(candidates) < s.cfg.BroadenThreshold {
		s.logger.Debug("broadening search",
			zap.Int("candidates", len(candidates)),
			zap.Int("threshold", s.cfg.BroadenThreshold))
		result.Broadened = true
		candidates = s.runPhase(ctx, broadTerms, token, candidates, result)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Pools = FilterQuality(candidates)
	if len(result.Pools) == 0 {
		result.Message = noPoolsMessage(opts.Style, token)
	}

	s.logger.Info("pool search finished",
		zap.String("style", string(opts.Style)),
		zap.String("token", token),
		zap.Int("candidates", len(candidates)),
		zap.Int("eligible", len(result.Pools)),
		zap.Strings("failed_terms", result.FailedTerms))
	s.metrics.ObserveSearch(len(result.Pools))
	return result, nil
}

// BestPool ranks candidates for style and selects the recommendation,
// avoiding pools in shown where possible.
func (s *Searcher) BestPool(candidates []core.Pool, style core.PortfolioStyle, shown ShownSet) *core.Pool {
	return SelectOptimalPool(SortPoolsByStyle(candidates, style), style, shown)
}

// runPhase fetches every term concurrently and merges the responses in term
// order through the validity filter and deduplication.
func (s *Searcher) runPhase(ctx context.Context, terms []string, token string, candidates []core.Pool, result *SearchResult) []core.Pool {
	responses := make([]*core.PoolGroupResponse, len(terms))

	var g errgroup.Group
	for i, term := range terms {
		g.Go(func() error {
			resp, err := s.fetcher.Fetch(ctx, term)
			if err != nil {
				s.logger.Warn("search term failed", zap.String("term", term), zap.Error(err))
				s.metrics.ObserveGatewayError("pools")
				return nil
			}
			responses[i] = resp
			return nil
		})
	}
	g.Wait()

	for i, resp := range responses {
		if resp == nil {
			result.FailedTerms = append(result.FailedTerms, terms[i])
			continue
		}
		valid := FilterValidPairs(resp.Pairs())
		if token != "" {
			valid = filterToken(valid, token)
		}
		candidates = append(candidates, RemoveDuplicatePools(candidates, valid)...)
	}
	return candidates
}

func searchTerms(token string) (direct, broad []string) {
	tokens := Tokens
	if token != "" {
		tokens = []string{token}
	}
	for _, t := range tokens {
		direct = append(direct, t+"-sol")
		broad = append(broad, t)
	}
	return direct, broad
}

func filterToken(in []core.Pool, token string) []core.Pool {
	want := token + "-sol"
	out := in[:0:0]
	for _, p := range in {
		if strings.ToLower(p.Name) == want {
			out = append(out, p)
		}
	}
	return out
}

func tokenLabel(token string) string {
	switch token {
	case "wbtc":
		return "wBTC"
	case "zbtc":
		return "zBTC"
	case "cbbtc":
		return "cbBTC"
	default:
		return "BTC"
	}
}

func statusMessage(style core.PortfolioStyle, token string) string {
	if style.Known() {
		return fmt.Sprintf("Searching for the best %s-SOL pools for your %s strategy...", tokenLabel(token), style)
	}
	return fmt.Sprintf("Searching for %s-SOL liquidity pools...", tokenLabel(token))
}

func noPoolsMessage(style core.PortfolioStyle, token string) string {
	switch {
	case style.Known() && token != "":
		return fmt.Sprintf("No %s-SOL pools currently meet the quality bar for a %s strategy. Try another token or check back later.", tokenLabel(token), style)
	case style.Known():
		return fmt.Sprintf("No BTC-SOL pools currently meet the quality bar for a %s strategy. Please check back later.", style)
	case token != "":
		return fmt.Sprintf("No %s-SOL pools found right now. Try another token or check back later.", tokenLabel(token))
	default:
		return "No BTC-SOL pools found right now. Please check back later."
	}
}
