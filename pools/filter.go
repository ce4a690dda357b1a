// Package pools selects BTC-SOL DLMM pools to recommend: it validates,
// deduplicates, quality-filters, and ranks candidates by portfolio style.
package pools

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/becomeliminal/dlmm-scout/core"
)

// Quality thresholds. APY is a fraction (0.03 = 3%), fees are in USD.
const (
	MinAPY     = 0.03
	MinFees24h = 5.0
)

// allowedPairs are the only pair names (lower-cased) eligible for recommendation.
var allowedPairs = map[string]bool{
	"wbtc-sol":  true,
	"zbtc-sol":  true,
	"cbbtc-sol": true,
}

// allowedBinSteps are the bin steps a pool must use to be eligible.
var allowedBinSteps = map[int]bool{5: true, 10: true, 15: true, 50: true}

// PreferredBinSteps returns the bin steps a style favours, in preference order.
// Unknown styles have no preference.
func PreferredBinSteps(style core.PortfolioStyle) []int {
	switch style {
	case core.StyleConservative:
		return []int{50}
	case core.StyleModerate:
		return []int{10, 15}
	case core.StyleAggressive:
		return []int{5}
	default:
		return nil
	}
}

// IsValidPair reports whether p is a BTC-SOL pair this service recommends.
func IsValidPair(p core.Pool) bool {
	name := strings.ToLower(p.Name)
	if !allowedPairs[name] || strings.Contains(name, "jito") {
		return false
	}
	return allowedBinSteps[p.BinStepOrZero()]
}

// FilterValidPairs keeps the pools accepted by IsValidPair, in input order.
func FilterValidPairs(in []core.Pool) []core.Pool {
	out := make([]core.Pool, 0, len(in))
	for _, p := range in {
		if IsValidPair(p) {
			out = append(out, p)
		}
	}
	return out
}

// RemoveDuplicatePools returns the pools from incoming that do not share
// (name, bin step) with any pool in existing or with an earlier incoming pool.
// Names compare case-insensitively.
func RemoveDuplicatePools(existing, incoming []core.Pool) []core.Pool {
	seen := make(map[poolKey]bool, len(existing)+len(incoming))
	for _, p := range existing {
		seen[keyOf(p)] = true
	}
	out := make([]core.Pool, 0, len(incoming))
	for _, p := range incoming {
		k := keyOf(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

type poolKey struct {
	name    string
	binStep int
}

func keyOf(p core.Pool) poolKey {
	return poolKey{name: strings.ToLower(p.Name), binStep: p.BinStepOrZero()}
}

// FilterQuality drops pools below MinAPY or MinFees24h. Both bounds are inclusive.
func FilterQuality(in []core.Pool) []core.Pool {
	out := make([]core.Pool, 0, len(in))
	for _, p := range in {
		if p.APY.Float64() < MinAPY || p.Fees24h.Float64() < MinFees24h {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SortPoolsByStyle returns a stably sorted copy of in:
//
//	conservative: bin step 50 first, then liquidity descending
//	moderate:     bin step 10, then 15, then the rest; 0.6*liquidity + 0.4*apy descending
//	aggressive:   bin step 5 first, then apy descending
//
// Unknown styles return the input order unchanged.
func SortPoolsByStyle(in []core.Pool, style core.PortfolioStyle) []core.Pool {
	out := slices.Clone(in)

	var compare func(a, b core.Pool) int
	switch style {
	case core.StyleConservative:
		compare = func(a, b core.Pool) int {
			return cmp.Or(
				cmp.Compare(preferenceRank(a, style), preferenceRank(b, style)),
				cmp.Compare(Liquidity(b), Liquidity(a)),
			)
		}
	case core.StyleModerate:
		compare = func(a, b core.Pool) int {
			return cmp.Or(
				cmp.Compare(preferenceRank(a, style), preferenceRank(b, style)),
				cmp.Compare(moderateScore(b), moderateScore(a)),
			)
		}
	case core.StyleAggressive:
		compare = func(a, b core.Pool) int {
			return cmp.Or(
				cmp.Compare(preferenceRank(a, style), preferenceRank(b, style)),
				cmp.Compare(b.APY.Float64(), a.APY.Float64()),
			)
		}
	default:
		return out
	}

	slices.SortStableFunc(out, compare)
	return out
}

// preferenceRank is the index of the pool's bin step in the style's
// preferred list, or len(list) when it is not preferred.
func preferenceRank(p core.Pool, style core.PortfolioStyle) int {
	preferred := PreferredBinSteps(style)
	if i := slices.Index(preferred, p.BinStepOrZero()); i >= 0 {
		return i
	}
	return len(preferred)
}

func isPreferred(p core.Pool, style core.PortfolioStyle) bool {
	return slices.Contains(PreferredBinSteps(style), p.BinStepOrZero())
}

func moderateScore(p core.Pool) float64 {
	return 0.6*Liquidity(p) + 0.4*p.APY.Float64()
}

// Liquidity parses the pool's string-encoded TVL. Unparseable values count as 0.
func Liquidity(p core.Pool) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(p.Liquidity))
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// SelectOptimalPool picks the pool to recommend from a style-sorted list,
// preferring, in order:
//
//  1. the first unseen pool with a preferred bin step
//  2. the first unseen pool
//  3. the first pool with a preferred bin step, even if already shown
//  4. the first pool
//
// It returns nil only when sorted is empty. sorted is not modified.
func SelectOptimalPool(sorted []core.Pool, style core.PortfolioStyle, shown ShownSet) *core.Pool {
	if len(sorted) == 0 {
		return nil
	}

	pick := func(match func(core.Pool) bool) *core.Pool {
		for i := range sorted {
			if match(sorted[i]) {
				p := sorted[i]
				return &p
			}
		}
		return nil
	}

	if p := pick(func(p core.Pool) bool { return isPreferred(p, style) && !shown.Has(p.Address) }); p != nil {
		return p
	}
	if p := pick(func(p core.Pool) bool { return !shown.Has(p.Address) }); p != nil {
		return p
	}
	if p := pick(func(p core.Pool) bool { return isPreferred(p, style) }); p != nil {
		return p
	}
	p := sorted[0]
	return &p
}
