package server

import (
	"net/http"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/becomeliminal/dlmm-scout/core"
	"github.com/becomeliminal/dlmm-scout/pools"
)

// DefaultInvestmentAmount is used for earnings estimates when the client
// does not send an amount (USD).
var DefaultInvestmentAmount = decimal.NewFromInt(1000)

type bestPoolResponse struct {
	Status     string              `json:"status"`
	Pool       *core.FormattedPool `json:"pool"`
	Candidates int                 `json:"candidates"`
	Message    string              `json:"message,omitempty"`
}

// handleBestPool runs a pool search and recommends one pool, skipping the
// addresses the client lists in exclude where possible.
func (s *Server) handleBestPool(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	style, ok := core.ParseStyle(q.Get("style"))
	if !ok {
		s.writeError(w, r, core.NewValidationError("style", "must be conservative, moderate or aggressive"))
		return
	}

	token := strings.ToLower(strings.TrimSpace(q.Get("token")))
	if token != "" && !slices.Contains(pools.Tokens, token) {
		s.writeError(w, r, core.NewValidationError("token", "must be one of %s", strings.Join(pools.Tokens, ", ")))
		return
	}

	amount := DefaultInvestmentAmount
	if raw := strings.TrimSpace(q.Get("amount")); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil || !parsed.IsPositive() {
			s.writeError(w, r, core.NewValidationError("amount", "must be a positive number"))
			return
		}
		amount = parsed
	}

	result, err := s.searcher.Search(r.Context(), pools.SearchOptions{Style: style, Token: token})
	if err != nil {
		s.logger.Info("pool search abandoned", requestIDField(r), zap.Error(err))
		s.writeError(w, r, err)
		return
	}

	if len(result.Pools) == 0 {
		writeJSON(w, http.StatusOK, bestPoolResponse{Status: "no_pools", Message: result.Message})
		return
	}

	best := s.searcher.BestPool(result.Pools, style, pools.ParseShownSet(q.Get("exclude")))
	riskLevel := style
	if !riskLevel.Known() {
		riskLevel = core.StyleModerate
	}
	formatted := pools.Format(*best, amount, riskLevel)

	writeJSON(w, http.StatusOK, bestPoolResponse{
		Status:     "found",
		Pool:       &formatted,
		Candidates: len(result.Pools),
	})
}
