// Package observability provides a metrics extension for ballot that records
// lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/plugin"
	"github.com/xraph/ballot/project"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnProjectRegistered = (*MetricsExtension)(nil)
	_ plugin.OnVoteCast          = (*MetricsExtension)(nil)
	_ plugin.OnVoteRejected      = (*MetricsExtension)(nil)
	_ plugin.OnFeeCharged        = (*MetricsExtension)(nil)
	_ plugin.OnFeeChargeFailed   = (*MetricsExtension)(nil)
	_ plugin.OnFeeRefunded       = (*MetricsExtension)(nil)
	_ plugin.OnFeesWithdrawn     = (*MetricsExtension)(nil)
	_ plugin.OnFeeUpdated        = (*MetricsExtension)(nil)
	_ plugin.OnAccessDenied      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a ballot plugin to track voting and fee metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Registry metrics
	ProjectsRegistered Counter

	// Vote metrics
	VotesCast     Counter
	VotesFree     Counter
	VotesBillable Counter

	// Rejection metrics, one per cause
	RejectedUnknownProject Counter
	RejectedAlreadyVoted   Counter
	RejectedFeeDeclined    Counter
	RejectedConflict       Counter
	RejectedOther          Counter

	// Fee metrics
	FeesCharged      Counter
	FeeChargeFailed  Counter
	FeesRefunded     Counter
	FeeAmountCharged Histogram
	Withdrawals      Counter
	WithdrawnAmount  Histogram
	FeeUpdates       Counter

	// Access metrics
	AccessDenied Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory for a standalone deployment.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		ProjectsRegistered: factory.Counter("ballot.project.registered"),

		VotesCast:     factory.Counter("ballot.vote.cast"),
		VotesFree:     factory.Counter("ballot.vote.free"),
		VotesBillable: factory.Counter("ballot.vote.billable"),

		RejectedUnknownProject: factory.Counter("ballot.vote.rejected.unknown_project"),
		RejectedAlreadyVoted:   factory.Counter("ballot.vote.rejected.already_voted"),
		RejectedFeeDeclined:    factory.Counter("ballot.vote.rejected.fee_declined"),
		RejectedConflict:       factory.Counter("ballot.vote.rejected.conflict"),
		RejectedOther:          factory.Counter("ballot.vote.rejected.other"),

		FeesCharged:      factory.Counter("ballot.fee.charged"),
		FeeChargeFailed:  factory.Counter("ballot.fee.charge_failed"),
		FeesRefunded:     factory.Counter("ballot.fee.refunded"),
		FeeAmountCharged: factory.Histogram("ballot.fee.charged_amount"),
		Withdrawals:      factory.Counter("ballot.fee.withdrawn"),
		WithdrawnAmount:  factory.Histogram("ballot.fee.withdrawn_amount"),
		FeeUpdates:       factory.Counter("ballot.fee.updated"),

		AccessDenied: factory.Counter("ballot.access.denied"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnProjectRegistered implements plugin.OnProjectRegistered.
func (m *MetricsExtension) OnProjectRegistered(_ context.Context, _ *project.Project) error {
	m.ProjectsRegistered.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Voting hooks
// ──────────────────────────────────────────────────

// OnVoteCast implements plugin.OnVoteCast.
func (m *MetricsExtension) OnVoteCast(_ context.Context, v *voter.Vote) error {
	m.VotesCast.Inc()
	if v.Billable {
		m.VotesBillable.Inc()
	} else {
		m.VotesFree.Inc()
	}
	return nil
}

// OnVoteRejected implements plugin.OnVoteRejected.
func (m *MetricsExtension) OnVoteRejected(_ context.Context, _ types.Address, _ uint64, reason error) error {
	switch {
	case errors.Is(reason, ballot.ErrInvalidProjectID):
		m.RejectedUnknownProject.Inc()
	case errors.Is(reason, ballot.ErrAlreadyVoted):
		m.RejectedAlreadyVoted.Inc()
	case errors.Is(reason, ballot.ErrFeeTransferFailed):
		m.RejectedFeeDeclined.Inc()
	case errors.Is(reason, ballot.ErrVoteConflict):
		m.RejectedConflict.Inc()
	default:
		m.RejectedOther.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Fee hooks
// ──────────────────────────────────────────────────

// OnFeeCharged implements plugin.OnFeeCharged.
func (m *MetricsExtension) OnFeeCharged(_ context.Context, c *fee.Charge) error {
	m.FeesCharged.Inc()
	m.FeeAmountCharged.Observe(c.Amount.Float64())
	return nil
}

// OnFeeChargeFailed implements plugin.OnFeeChargeFailed.
func (m *MetricsExtension) OnFeeChargeFailed(_ context.Context, _ *fee.Charge, _ error) error {
	m.FeeChargeFailed.Inc()
	return nil
}

// OnFeeRefunded implements plugin.OnFeeRefunded.
func (m *MetricsExtension) OnFeeRefunded(_ context.Context, _ *fee.Charge) error {
	m.FeesRefunded.Inc()
	return nil
}

// OnFeesWithdrawn implements plugin.OnFeesWithdrawn.
func (m *MetricsExtension) OnFeesWithdrawn(_ context.Context, w *fee.Withdrawal) error {
	m.Withdrawals.Inc()
	m.WithdrawnAmount.Observe(w.Amount.Float64())
	return nil
}

// OnFeeUpdated implements plugin.OnFeeUpdated.
func (m *MetricsExtension) OnFeeUpdated(_ context.Context, _ *fee.Change) error {
	m.FeeUpdates.Inc()
	return nil
}

// OnAccessDenied implements plugin.OnAccessDenied.
func (m *MetricsExtension) OnAccessDenied(_ context.Context, _ types.Address, _ string) error {
	m.AccessDenied.Inc()
	return nil
}
