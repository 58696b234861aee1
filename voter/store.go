package voter

import (
	"context"

	"github.com/xraph/ballot/types"
)

type Store interface {
	GetVoter(ctx context.Context, addr types.Address) (*Voter, error)
	HasVoted(ctx context.Context, addr types.Address, projectID uint64) (bool, error)

	// RecordVote commits v and the voter aggregate it implies as one atomic
	// write. It fails when the voter already voted for v.ProjectID, or when
	// the stored TotalVotes is not v.Seq-1 (another writer got there first).
	RecordVote(ctx context.Context, v *Vote) error

	ListVotes(ctx context.Context, addr types.Address, opts ListOpts) ([]*Vote, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
