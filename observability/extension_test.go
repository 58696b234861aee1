package observability_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/observability"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

func newExtension(t *testing.T) (*observability.MetricsExtension, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return observability.NewMetricsExtension(observability.NewPrometheusFactory(reg)), reg
}

func counterValue(t *testing.T, c observability.Counter) float64 {
	t.Helper()
	collector, ok := c.(prometheus.Collector)
	require.True(t, ok)
	return testutil.ToFloat64(collector)
}

func TestVoteCounters(t *testing.T) {
	ctx := context.Background()
	m, _ := newExtension(t)

	require.NoError(t, m.OnVoteCast(ctx, &voter.Vote{}))
	require.NoError(t, m.OnVoteCast(ctx, &voter.Vote{}))
	require.NoError(t, m.OnVoteCast(ctx, &voter.Vote{Billable: true}))

	assert.Equal(t, 3.0, counterValue(t, m.VotesCast))
	assert.Equal(t, 2.0, counterValue(t, m.VotesFree))
	assert.Equal(t, 1.0, counterValue(t, m.VotesBillable))
}

func TestRejectionsByCause(t *testing.T) {
	ctx := context.Background()
	m, _ := newExtension(t)

	reasons := []error{
		fmt.Errorf("%w: 10", ballot.ErrInvalidProjectID),
		ballot.ErrAlreadyVoted,
		fmt.Errorf("%w: allowance", ballot.ErrFeeTransferFailed),
		ballot.ErrVoteConflict,
		ballot.ErrStoreClosed,
	}
	for _, r := range reasons {
		require.NoError(t, m.OnVoteRejected(ctx, "alice", 1, r))
	}

	for _, c := range []observability.Counter{
		m.RejectedUnknownProject,
		m.RejectedAlreadyVoted,
		m.RejectedFeeDeclined,
		m.RejectedConflict,
		m.RejectedOther,
	} {
		assert.Equal(t, 1.0, counterValue(t, c))
	}
}

func TestFeeMetricsExported(t *testing.T) {
	ctx := context.Background()
	m, reg := newExtension(t)

	fee5 := types.MustParseUnits("5", 18)
	require.NoError(t, m.OnFeeCharged(ctx, &fee.Charge{Amount: fee5}))
	require.NoError(t, m.OnFeesWithdrawn(ctx, &fee.Withdrawal{Amount: fee5}))
	require.NoError(t, m.OnAccessDenied(ctx, "mallory", "withdraw_fees"))

	assert.Equal(t, 1.0, counterValue(t, m.FeesCharged))
	assert.Equal(t, 1.0, counterValue(t, m.AccessDenied))

	count, err := testutil.GatherAndCount(reg, "ballot_fee_charged_amount", "ballot_fee_withdrawn_amount")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFactorySharesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	b := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	a.FeeUpdates.Inc()
	b.FeeUpdates.Inc()
	assert.Equal(t, 2.0, counterValue(t, a.FeeUpdates))
}
