package core

import "encoding/json"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the validated body of POST /api/chat.
type ChatRequest struct {
	Messages []Message `json:"messages"`

	// PoolData is the formatted pool the user wants analysed, kept as the
	// client sent it so it can be embedded verbatim in the prompt.
	PoolData json.RawMessage `json:"poolData,omitempty"`

	PortfolioStyle string `json:"portfolioStyle,omitempty"`
}

// HasPool reports whether the request carries pool data to analyse.
func (r *ChatRequest) HasPool() bool {
	return r != nil && len(r.PoolData) > 0
}

// FormattedPool is the display-ready view of a Pool for a given investment
// amount and portfolio style. It is recomputed for every analysis request.
type FormattedPool struct {
	Name                   string  `json:"name"`
	Address                string  `json:"address"`
	Liquidity              string  `json:"liquidity"`
	CurrentPrice           float64 `json:"currentPrice"`
	APY                    float64 `json:"apy"`
	Fees24h                float64 `json:"fees24h"`
	Volume24h              float64 `json:"volume24h"`
	BinStep                int     `json:"binStep"`
	EstimatedDailyEarnings string  `json:"estimatedDailyEarnings"`
	InvestmentAmount       string  `json:"investmentAmount"`
	RiskLevel              string  `json:"riskLevel"`
}
