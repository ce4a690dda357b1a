package core

import "strings"

// PortfolioStyle is the user's risk preference. It drives pool ranking and
// the framing of the pool analysis prompt.
type PortfolioStyle string

const (
	StyleConservative PortfolioStyle = "conservative"
	StyleModerate     PortfolioStyle = "moderate"
	StyleAggressive   PortfolioStyle = "aggressive"
)

// ParseStyle normalizes s into a PortfolioStyle. The empty string is
// accepted and means "no preference".
func ParseStyle(s string) (PortfolioStyle, bool) {
	style := PortfolioStyle(strings.ToLower(strings.TrimSpace(s)))
	switch style {
	case "", StyleConservative, StyleModerate, StyleAggressive:
		return style, true
	default:
		return "", false
	}
}

// Known reports whether s is one of the three portfolio styles.
func (s PortfolioStyle) Known() bool {
	switch s {
	case StyleConservative, StyleModerate, StyleAggressive:
		return true
	}
	return false
}

func (s PortfolioStyle) String() string {
	return string(s)
}
