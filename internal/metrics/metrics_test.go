package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{301, "3xx"},
		{403, "4xx"},
		{429, "4xx"},
		{503, "5xx"},
		{0, "unknown"},
		{999, "unknown"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusClass(tc.code), "code %d", tc.code)
	}
}

func TestCountersAccumulate(t *testing.T) {
	before := testutil.ToFloat64(rateLimitCooldownsTotal)
	ObserveRateLimitCooldown()
	ObserveRateLimitCooldown()
	require.Equal(t, before+2, testutil.ToFloat64(rateLimitCooldownsTotal))

	beforeRows := testutil.ToFloat64(rowsLoadedTotal)
	AddRowsLoaded(30)
	AddRowsLoaded(-5)
	require.Equal(t, beforeRows+30, testutil.ToFloat64(rowsLoadedTotal))
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	require.NotNil(t, Handler())
}
