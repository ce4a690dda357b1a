// Package validation checks chat requests before they reach the relay.
// Validation is fail-fast: the first violation is returned as a
// *core.ValidationError naming the offending field.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/becomeliminal/dlmm-scout/core"
)

// Limits applied to a chat request.
const (
	MaxMessages         = 50
	MaxContentLength    = 10_000
	MaxStyleLength      = 100
	MaxPoolDataBytes    = 50_000
	MaxRequestBodyBytes = 1 << 20
)

// unsafeContent matches script tags, javascript: URLs, and inline event
// handler attributes such as onerror=.
var unsafeContent = regexp.MustCompile(`(?i)<\s*script|javascript\s*:|<[^>]*\son[a-z]+\s*=`)

type rawRequest struct {
	Messages       json.RawMessage `json:"messages"`
	PoolData       json.RawMessage `json:"poolData"`
	PortfolioStyle json.RawMessage `json:"portfolioStyle"`
}

type rawMessage struct {
	Role    json.RawMessage `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ValidateChatRequest decodes and validates a chat request body.
func ValidateChatRequest(body []byte) (*core.ChatRequest, error) {
	if !isJSONObject(body) {
		return nil, core.NewValidationError("body", "request body must be a JSON object")
	}
	var raw rawRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, core.NewValidationError("body", "request body is not valid JSON")
	}

	req := &core.ChatRequest{}

	poolData, err := validatePoolData(raw.PoolData)
	if err != nil {
		return nil, err
	}
	req.PoolData = poolData

	if req.Messages, err = validateMessages(raw.Messages, req.HasPool()); err != nil {
		return nil, err
	}

	if !isAbsent(raw.PortfolioStyle) {
		var style string
		if err := json.Unmarshal(raw.PortfolioStyle, &style); err != nil {
			return nil, core.NewValidationError("portfolioStyle", "must be a string")
		}
		if utf8.RuneCountInString(style) > MaxStyleLength {
			return nil, core.NewValidationError("portfolioStyle", "must be at most %d characters", MaxStyleLength)
		}
		req.PortfolioStyle = style
	}

	return req, nil
}

func validateMessages(raw json.RawMessage, hasPool bool) ([]core.Message, error) {
	var items []json.RawMessage
	if !isAbsent(raw) {
		if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
			return nil, core.NewValidationError("messages", "must be an array")
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, core.NewValidationError("messages", "must be an array")
		}
	}

	switch {
	case len(items) == 0 && !hasPool:
		return nil, core.NewValidationError("messages", "at least one message is required")
	case len(items) > MaxMessages:
		return nil, core.NewValidationError("messages", "at most %d messages are allowed", MaxMessages)
	}

	messages := make([]core.Message, 0, len(items))
	for i, item := range items {
		msg, err := validateMessage(i, item)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func validateMessage(i int, item json.RawMessage) (core.Message, error) {
	field := fmt.Sprintf("messages[%d]", i)
	if !isJSONObject(item) {
		return core.Message{}, core.NewValidationError(field, "must be an object")
	}
	var raw rawMessage
	if err := json.Unmarshal(item, &raw); err != nil {
		return core.Message{}, core.NewValidationError(field, "must be an object")
	}

	var role string
	if err := json.Unmarshal(raw.Role, &role); err != nil || (role != string(core.RoleUser) && role != string(core.RoleAssistant)) {
		return core.Message{}, core.NewValidationError(field+".role", "must be %q or %q", core.RoleUser, core.RoleAssistant)
	}

	var content string
	if isAbsent(raw.Content) || json.Unmarshal(raw.Content, &content) != nil {
		return core.Message{}, core.NewValidationError(field+".content", "must be a string")
	}
	switch {
	case content == "":
		return core.Message{}, core.NewValidationError(field+".content", "must not be empty")
	case utf8.RuneCountInString(content) > MaxContentLength:
		return core.Message{}, core.NewValidationError(field+".content", "must be at most %d characters", MaxContentLength)
	case unsafeContent.MatchString(content):
		return core.Message{}, core.NewValidationError(field+".content", "contains potentially unsafe content")
	}

	return core.Message{Role: core.Role(role), Content: content}, nil
}

// validatePoolData returns the compacted pool object, or nil when absent.
func validatePoolData(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if !isJSONObject(raw) {
		return nil, core.NewValidationError("poolData", "must be an object")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, core.NewValidationError("poolData", "must be an object")
	}
	if buf.Len() > MaxPoolDataBytes {
		return nil, core.NewValidationError("poolData", "must be at most %d bytes when serialized", MaxPoolDataBytes)
	}
	return json.RawMessage(buf.Bytes()), nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isJSONObject(raw []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{"))
}
