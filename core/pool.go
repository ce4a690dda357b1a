package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Pool is a DLMM pair as returned by the pools index API.
// Pools are request-scoped: fetched, filtered, and discarded.
type Pool struct {
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Liquidity      string    `json:"liquidity"`
	CurrentPrice   FlexFloat `json:"current_price"`
	APY            FlexFloat `json:"apy"`
	Fees24h        FlexFloat `json:"fees_24h"`
	TradeVolume24h FlexFloat `json:"trade_volume_24h"`

	// BinStep is the price granularity of the pair. Absent on some legacy pairs.
	BinStep *int `json:"bin_step,omitempty"`
}

// BinStepOrZero returns the bin step, or 0 when the API omitted it.
func (p Pool) BinStepOrZero() int {
	if p.BinStep == nil {
		return 0
	}
	return *p.BinStep
}

// PoolGroup is a named group of pairs sharing the same token pair.
type PoolGroup struct {
	Name  string `json:"name"`
	Pairs []Pool `json:"pairs"`
}

// PoolGroupResponse is the body of GET /pair/all_by_groups.
type PoolGroupResponse struct {
	Groups []PoolGroup `json:"groups"`
	Total  int         `json:"total"`
}

// Pairs flattens every group into a single slice, preserving API order.
func (r *PoolGroupResponse) Pairs() []Pool {
	if r == nil {
		return nil
	}
	var out []Pool
	for _, g := range r.Groups {
		out = append(out, g.Pairs...)
	}
	return out
}

// FlexFloat decodes a JSON number or a numeric string. The pools API is not
// consistent about which one it sends for prices and yields.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse numeric string %q: %w", s, err)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// Float64 returns the value as a float64.
func (f FlexFloat) Float64() float64 {
	return float64(f)
}
