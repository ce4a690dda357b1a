package core_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/dlmm-scout/core"
)

func TestPool_DecodesMixedNumericEncodings(t *testing.T) {
	body := `{
		"name": "wBTC-SOL",
		"address": "7ubS3GccjhQY99AYNKXjNJqnXjaokEdfdV915xnCb96r",
		"liquidity": "125034.55",
		"current_price": "612.41",
		"apy": 0.042,
		"fees_24h": "18.5",
		"trade_volume_24h": 90210,
		"bin_step": 10
	}`

	var p core.Pool
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	assert.Equal(t, "wBTC-SOL", p.Name)
	assert.InDelta(t, 612.41, p.CurrentPrice.Float64(), 1e-9)
	assert.InDelta(t, 18.5, p.Fees24h.Float64(), 1e-9)
	assert.InDelta(t, 90210, p.TradeVolume24h.Float64(), 1e-9)
	assert.Equal(t, 10, p.BinStepOrZero())
}

func TestPool_MissingBinStepDefaultsToZero(t *testing.T) {
	var p core.Pool
	require.NoError(t, json.Unmarshal([]byte(`{"name":"zbtc-sol","current_price":null}`), &p))
	assert.Nil(t, p.BinStep)
	assert.Equal(t, 0, p.BinStepOrZero())
	assert.Zero(t, p.CurrentPrice.Float64())
}

func TestFlexFloat_RejectsGarbage(t *testing.T) {
	var f core.FlexFloat
	assert.Error(t, json.Unmarshal([]byte(`"not-a-number"`), &f))
}

func TestPoolGroupResponse_Pairs(t *testing.T) {
	resp := &core.PoolGroupResponse{Groups: []core.PoolGroup{
		{Name: "WBTC-SOL", Pairs: []core.Pool{{Address: "a"}, {Address: "b"}}},
		{Name: "CBBTC-SOL", Pairs: []core.Pool{{Address: "c"}}},
	}}
	pairs := resp.Pairs()
	require.Len(t, pairs, 3)
	assert.Equal(t, "c", pairs[2].Address)

	var nilResp *core.PoolGroupResponse
	assert.Nil(t, nilResp.Pairs())
}

func TestParseStyle(t *testing.T) {
	tests := []struct {
		in    string
		want  core.PortfolioStyle
		valid bool
	}{
		{"conservative", core.StyleConservative, true},
		{" Aggressive ", core.StyleAggressive, true},
		{"", "", true},
		{"yolo", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := core.ParseStyle(tt.in)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
