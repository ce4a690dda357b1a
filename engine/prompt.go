package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/becomeliminal/dlmm-scout/core"
)

// BasePrompt is the assistant persona sent with every request.
const BasePrompt = `You are DLMM Scout, an assistant that helps users find and understand Meteora DLMM liquidity pools on Solana.

You focus on BTC-SOL pairs (wBTC-SOL, zBTC-SOL and cbBTC-SOL) and explain how bin step, liquidity, fee APY and trading volume affect a liquidity provider.

Guidelines:
- Be concise and concrete. Use the numbers you are given; never invent pool data.
- Explain DeFi terms in plain language when the user seems new to them.
- You give information, not financial advice. Remind users that providing liquidity carries risk, including impermanent loss.`

// PoolAnalysisPrompt is appended to BasePrompt when the request carries pool data.
const PoolAnalysisPrompt = `When you are asked to analyze a liquidity pool, answer in this structure:

**Why this pool fits a {style} strategy**
- 2 to 4 bullet points on suitability, referring to bin step, liquidity, APY and 24h fees.

**Risk considerations**
- 2 to 4 bullet points on the risks: price range exposure for the bin step, impermanent loss, liquidity depth and yield volatility.

Close with one sentence on the estimated daily earnings for the investment amount shown.`

// DefaultAnalysisStyle frames the virtual analysis message when the client sent no style.
const DefaultAnalysisStyle = "moderate"

// greeting is sent when the conversation would otherwise be empty.
const greeting = "Hello"

// BuildSystemPrompt returns the system prompt for a request. Pool analysis
// instructions are only included when hasPool is set; memories, if any, are
// appended last.
func BuildSystemPrompt(hasPool bool, style string, memories string) string {
	var b strings.Builder
	b.WriteString(BasePrompt)
	if hasPool {
		b.WriteString("\n\n")
		b.WriteString(strings.ReplaceAll(PoolAnalysisPrompt, "{style}", analysisStyle(style)))
	}
	if memories != "" {
		b.WriteString("\n\n")
		b.WriteString(memories)
	}
	return b.String()
}

// BuildMessages returns the messages to send upstream: the client's history,
// then a virtual user message embedding the pool when there is one. The
// result is never empty.
func BuildMessages(req *core.ChatRequest) []core.Message {
	messages := make([]core.Message, 0, len(req.Messages)+1)
	messages = append(messages, req.Messages...)

	if req.HasPool() {
		messages = append(messages, core.Message{
			Role:    core.RoleUser,
			Content: fmt.Sprintf("Please analyze this liquidity pool for a %s portfolio strategy:\n%s", analysisStyle(req.PortfolioStyle), indent(req.PoolData)),
		})
	}

	if len(messages) == 0 {
		messages = append(messages, core.Message{Role: core.RoleUser, Content: greeting})
	}
	return messages
}

func analysisStyle(style string) string {
	if s := strings.TrimSpace(style); s != "" {
		return s
	}
	return DefaultAnalysisStyle
}

func indent(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// poolSummary is the subset of a formatted pool used for memory lookups.
type poolSummary struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	BinStep int    `json:"binStep"`
}

func summarizePool(raw json.RawMessage) poolSummary {
	var p poolSummary
	_ = json.Unmarshal(raw, &p)
	return p
}
