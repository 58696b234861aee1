package ballot

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

// VoterLedger owns per-voter vote records and the monthly free-vote
// counters.
type VoterLedger struct {
	store voter.Store
}

// NewVoterLedger wraps s.
func NewVoterLedger(s voter.Store) *VoterLedger {
	return &VoterLedger{store: s}
}

// Load returns the stored voter, or a zero voter for an address that has
// never voted.
func (l *VoterLedger) Load(ctx context.Context, addr types.Address) (voter.Voter, error) {
	v, err := l.store.GetVoter(ctx, addr)
	switch {
	case err == nil:
		return *v, nil
	case errors.Is(err, ErrVoterNotFound), errors.Is(err, ErrNotFound):
		return voter.Voter{Address: addr}, nil
	default:
		return voter.Voter{}, fmt.Errorf("ballot: load voter %s: %w", addr, err)
	}
}

// HasVoted reports whether addr already voted for projectID.
func (l *VoterLedger) HasVoted(ctx context.Context, addr types.Address, projectID uint64) (bool, error) {
	ok, err := l.store.HasVoted(ctx, addr, projectID)
	if err != nil {
		return false, fmt.Errorf("ballot: has voted %s/%d: %w", addr, projectID, err)
	}
	return ok, nil
}

// Record commits v. It returns ErrAlreadyVoted or ErrVoteConflict
// unwrapped so callers can match them directly.
func (l *VoterLedger) Record(ctx context.Context, v *voter.Vote) error {
	err := l.store.RecordVote(ctx, v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlreadyVoted), errors.Is(err, ErrVoteConflict):
		return err
	default:
		return fmt.Errorf("ballot: record vote: %w", err)
	}
}

// Query returns the voter's counters as observed in month now.
func (l *VoterLedger) Query(ctx context.Context, addr types.Address, now voter.Month) (voter.Snapshot, error) {
	v, err := l.Load(ctx, addr)
	if err != nil {
		return voter.Snapshot{}, err
	}
	return v.Snapshot(now), nil
}

// List returns addr's vote receipts, oldest first.
func (l *VoterLedger) List(ctx context.Context, addr types.Address, opts voter.ListOpts) ([]*voter.Vote, error) {
	return l.store.ListVotes(ctx, addr, opts)
}
