// Package plugin provides an extensible plugin system for ballot.
// Plugins hook into engine lifecycle and voting events; a failing or slow
// plugin is logged and never aborts the operation that emitted the event.
package plugin

import (
	"context"

	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/project"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnProjectRegistered is called after a project has been assigned its id.
type OnProjectRegistered interface {
	Plugin
	OnProjectRegistered(ctx context.Context, p *project.Project) error
}

// ──────────────────────────────────────────────────
// Voting hooks
// ──────────────────────────────────────────────────

// OnVoteCast is called after a vote has been committed.
type OnVoteCast interface {
	Plugin
	OnVoteCast(ctx context.Context, v *voter.Vote) error
}

// OnVoteRejected is called when a vote is refused (unknown project,
// duplicate vote, declined fee, lost commit race).
type OnVoteRejected interface {
	Plugin
	OnVoteRejected(ctx context.Context, voter types.Address, projectID uint64, reason error) error
}

// ──────────────────────────────────────────────────
// Fee hooks
// ──────────────────────────────────────────────────

// OnFeeCharged is called after a billable vote's fee was pulled.
type OnFeeCharged interface {
	Plugin
	OnFeeCharged(ctx context.Context, c *fee.Charge) error
}

// OnFeeChargeFailed is called when the token declined or failed a pull.
type OnFeeChargeFailed interface {
	Plugin
	OnFeeChargeFailed(ctx context.Context, c *fee.Charge, err error) error
}

// OnFeeRefunded is called after a charge was returned because its vote
// could not be committed.
type OnFeeRefunded interface {
	Plugin
	OnFeeRefunded(ctx context.Context, c *fee.Charge) error
}

// OnFeesWithdrawn is called after the owner swept the collected fees.
type OnFeesWithdrawn interface {
	Plugin
	OnFeesWithdrawn(ctx context.Context, w *fee.Withdrawal) error
}

// OnFeeUpdated is called after the owner changed the vote fee.
type OnFeeUpdated interface {
	Plugin
	OnFeeUpdated(ctx context.Context, c *fee.Change) error
}

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnAccessDenied is called when a non-owner attempts an owner-only
// operation.
type OnAccessDenied interface {
	Plugin
	OnAccessDenied(ctx context.Context, caller types.Address, operation string) error
}
