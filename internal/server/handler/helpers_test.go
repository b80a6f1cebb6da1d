package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/cache/memory"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrOperationInProgress, http.StatusConflict},
		{domain.ErrUserRejected, http.StatusForbidden},
		{domain.ErrEntityNotFound, http.StatusNotFound},
		{domain.NewRevertError("nope"), http.StatusUnprocessableEntity},
		{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{domain.ErrNotConnected, http.StatusPreconditionFailed},
		{domain.ErrProviderUnavailable, http.StatusPreconditionFailed},
		{domain.ErrMalformedValue, http.StatusBadRequest},
		{domain.ErrNetworkError, http.StatusBadGateway},
		{domain.ErrContractAddressMissing, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestParseChainID(t *testing.T) {
	tests := []struct {
		raw     string
		want    uint64
		wantErr bool
	}{
		{`1`, 1, false},
		{`"0x7a69"`, 31337, false},
		{`"11155111"`, 11155111, false},
		{`0`, 0, true},
		{`"x"`, 0, true},
		{`true`, 0, true},
		{``, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseChainID(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrMalformedValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCachedServesSecondReadFromCache(t *testing.T) {
	c := memory.NewCache()
	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"a"}, nil
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := cached(ctx, c, time.Minute, "k", load)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, v)
	}
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Flush(ctx))
	_, err := cached(ctx, c, time.Minute, "k", load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	_, err = cached(ctx, nil, time.Minute, "k", load)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPositiveEther(t *testing.T) {
	wei, err := positiveEther("price", "0.5")
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", wei.String())

	for _, in := range []string{"", "0", "-1", "abc"} {
		_, err := positiveEther("price", in)
		assert.ErrorIs(t, err, domain.ErrMalformedValue, in)
	}
}
