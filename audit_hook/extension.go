// Package audithook bridges ballot lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/plugin"
	"github.com/xraph/ballot/project"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnProjectRegistered = (*Extension)(nil)
	_ plugin.OnVoteCast          = (*Extension)(nil)
	_ plugin.OnVoteRejected      = (*Extension)(nil)
	_ plugin.OnFeeCharged        = (*Extension)(nil)
	_ plugin.OnFeeChargeFailed   = (*Extension)(nil)
	_ plugin.OnFeeRefunded       = (*Extension)(nil)
	_ plugin.OnFeesWithdrawn     = (*Extension)(nil)
	_ plugin.OnFeeUpdated        = (*Extension)(nil)
	_ plugin.OnAccessDenied      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ballot lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnProjectRegistered implements plugin.OnProjectRegistered.
func (e *Extension) OnProjectRegistered(ctx context.Context, p *project.Project) error {
	return e.record(ctx, ActionProjectRegistered, SeverityInfo, OutcomeSuccess,
		ResourceProject, projectKey(p.ID), CategoryRegistry, nil,
		"name", p.Name,
		"registrant", p.Registrant.String(),
	)
}

// ──────────────────────────────────────────────────
// Voting hooks
// ──────────────────────────────────────────────────

// OnVoteCast implements plugin.OnVoteCast.
func (e *Extension) OnVoteCast(ctx context.Context, v *voter.Vote) error {
	return e.record(ctx, ActionVoteCast, SeverityInfo, OutcomeSuccess,
		ResourceVote, v.ID.String(), CategoryVoting, nil,
		"voter", v.Voter.String(),
		"project_id", v.ProjectID,
		"seq", v.Seq,
		"month", v.Month.String(),
		"billable", v.Billable,
		"fee", v.Fee.String(),
	)
}

// OnVoteRejected implements plugin.OnVoteRejected.
func (e *Extension) OnVoteRejected(ctx context.Context, addr types.Address, projectID uint64, reason error) error {
	return e.record(ctx, ActionVoteRejected, SeverityWarning, OutcomeFailure,
		ResourceProject, projectKey(projectID), CategoryVoting, reason,
		"voter", addr.String(),
		"project_id", projectID,
	)
}

// ──────────────────────────────────────────────────
// Fee hooks
// ──────────────────────────────────────────────────

// OnFeeCharged implements plugin.OnFeeCharged.
func (e *Extension) OnFeeCharged(ctx context.Context, c *fee.Charge) error {
	return e.record(ctx, ActionFeeCharged, SeverityInfo, OutcomeSuccess,
		ResourceFee, c.Voter.String(), CategoryPayment, nil,
		"project_id", c.ProjectID,
		"amount", c.Amount.String(),
	)
}

// OnFeeChargeFailed implements plugin.OnFeeChargeFailed.
func (e *Extension) OnFeeChargeFailed(ctx context.Context, c *fee.Charge, err error) error {
	return e.record(ctx, ActionFeeChargeFailed, SeverityWarning, OutcomeFailure,
		ResourceFee, c.Voter.String(), CategoryPayment, err,
		"project_id", c.ProjectID,
		"amount", c.Amount.String(),
	)
}

// OnFeeRefunded implements plugin.OnFeeRefunded.
func (e *Extension) OnFeeRefunded(ctx context.Context, c *fee.Charge) error {
	return e.record(ctx, ActionFeeRefunded, SeverityWarning, OutcomeSuccess,
		ResourceFee, c.Voter.String(), CategoryPayment, nil,
		"project_id", c.ProjectID,
		"amount", c.Amount.String(),
	)
}

// OnFeesWithdrawn implements plugin.OnFeesWithdrawn.
func (e *Extension) OnFeesWithdrawn(ctx context.Context, w *fee.Withdrawal) error {
	return e.record(ctx, ActionFeesWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceTreasury, w.ID.String(), CategoryAdmin, nil,
		"owner", w.Owner.String(),
		"amount", w.Amount.String(),
	)
}

// OnFeeUpdated implements plugin.OnFeeUpdated.
func (e *Extension) OnFeeUpdated(ctx context.Context, c *fee.Change) error {
	return e.record(ctx, ActionFeeUpdated, SeverityInfo, OutcomeSuccess,
		ResourceFee, c.ID.String(), CategoryAdmin, nil,
		"previous", c.Previous.String(),
		"amount", c.Amount.String(),
		"updated_by", c.UpdatedBy.String(),
	)
}

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnAccessDenied implements plugin.OnAccessDenied.
func (e *Extension) OnAccessDenied(ctx context.Context, caller types.Address, operation string) error {
	return e.record(ctx, ActionAccessDenied, SeverityCritical, OutcomeFailure,
		ResourceTreasury, operation, CategoryAccess, nil,
		"caller", caller.String(),
		"operation", operation,
	)
}

func projectKey(projectID uint64) string {
	return strconv.FormatUint(projectID, 10)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
