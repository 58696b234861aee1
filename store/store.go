// Package store defines the aggregate persistence contract for ballot.
// Backends live in the sub-packages memory, sqlite, postgres and mongo.
package store

import (
	"context"

	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/project"
	"github.com/xraph/ballot/voter"
)

// Store is the unified storage interface for all ballot entities.
//
// Backends report missing rows with the root package sentinels:
// ballot.ErrInvalidProjectID for projects, ballot.ErrVoterNotFound for
// voters that never voted and ballot.ErrSettingsNotFound before the fee
// settings were initialised. RecordVote reports ballot.ErrAlreadyVoted and
// ballot.ErrVoteConflict.
type Store interface {
	project.Store
	voter.Store
	fee.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
