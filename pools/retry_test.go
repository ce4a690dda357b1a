package pools

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/dlmm-scout/core"
)

type flakyFetcher struct {
	errs  []error
	calls int
}

func (f *flakyFetcher) Fetch(ctx context.Context, term string) (*core.PoolGroupResponse, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return &core.PoolGroupResponse{Total: 1}, nil
}

func TestRetryFetcher_RecoversFromTransientErrors(t *testing.T) {
	next := &flakyFetcher{errs: []error{
		&core.GatewayError{Op: "fetch", StatusCode: http.StatusServiceUnavailable},
		&core.GatewayError{Op: "fetch", Err: errors.New("connection refused")},
	}}

	resp, err := NewRetryFetcher(next, 3, time.Millisecond, nil).Fetch(context.Background(), "wbtc-sol")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 3, next.calls)
}

func TestRetryFetcher_StopsOnClientError(t *testing.T) {
	next := &flakyFetcher{errs: []error{&core.GatewayError{Op: "fetch", StatusCode: http.StatusNotFound}}}

	_, err := NewRetryFetcher(next, 5, time.Millisecond, nil).Fetch(context.Background(), "wbtc-sol")
	var gwErr *core.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusNotFound, gwErr.StatusCode)
	assert.Equal(t, 1, next.calls)
}

func TestRetryFetcher_GivesUpAfterMaxTries(t *testing.T) {
	boom := &core.GatewayError{Op: "fetch", StatusCode: http.StatusTooManyRequests}
	next := &flakyFetcher{errs: []error{boom, boom, boom, boom}}

	_, err := NewRetryFetcher(next, 2, time.Millisecond, nil).Fetch(context.Background(), "wbtc")
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)
}
