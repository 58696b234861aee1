// Package memory is an in-process store.Store. It is the default for tests
// and for the daemon when no database is configured.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/project"
	"github.com/xraph/ballot/store"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

type votedKey struct {
	voter     types.Address
	projectID uint64
}

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Project storage, indexed by id
	projects []project.Project

	// Voter storage
	voters map[types.Address]*voter.Voter
	votes  map[types.Address][]voter.Vote
	voted  map[votedKey]struct{}

	// Fee storage
	settings    *fee.Settings
	changes     []fee.Change
	withdrawals []fee.Withdrawal
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		voters: make(map[types.Address]*voter.Voter),
		votes:  make(map[types.Address][]voter.Vote),
		voted:  make(map[votedKey]struct{}),
	}
}

// Project Store implementation
func (s *Store) Register(_ context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ballot.ErrStoreClosed
	}
	p.ID = uint64(len(s.projects))
	s.projects = append(s.projects, *p)
	return nil
}

func (s *Store) Get(_ context.Context, projectID uint64) (*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if projectID >= uint64(len(s.projects)) {
		return nil, ballot.ErrInvalidProjectID
	}
	p := s.projects[projectID]
	return &p, nil
}

func (s *Store) List(_ context.Context, opts project.ListOpts) ([]*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := window(len(s.projects), opts.Offset, opts.Limit)
	result := make([]*project.Project, 0, end-start)
	for i := start; i < end; i++ {
		p := s.projects[i]
		result = append(result, &p)
	}
	return result, nil
}

func (s *Store) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.projects)), nil
}

// Voter Store implementation
func (s *Store) GetVoter(_ context.Context, addr types.Address) (*voter.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.voters[addr]
	if !ok {
		return nil, ballot.ErrVoterNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *Store) HasVoted(_ context.Context, addr types.Address, projectID uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.voted[votedKey{addr, projectID}]
	return ok, nil
}

func (s *Store) RecordVote(_ context.Context, v *voter.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ballot.ErrStoreClosed
	}

	key := votedKey{v.Voter, v.ProjectID}
	if _, ok := s.voted[key]; ok {
		return ballot.ErrAlreadyVoted
	}
	var total uint64
	if cur, ok := s.voters[v.Voter]; ok {
		total = cur.TotalVotes
	}
	if total != v.Seq-1 {
		return ballot.ErrVoteConflict
	}

	next := voter.FromVote(v)
	if cur, ok := s.voters[v.Voter]; ok {
		next.CreatedAt = cur.CreatedAt
	}
	s.voters[v.Voter] = &next
	s.votes[v.Voter] = append(s.votes[v.Voter], *v)
	s.voted[key] = struct{}{}
	return nil
}

func (s *Store) ListVotes(_ context.Context, addr types.Address, opts voter.ListOpts) ([]*voter.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	votes := s.votes[addr]
	start, end := window(len(votes), opts.Offset, opts.Limit)
	result := make([]*voter.Vote, 0, end-start)
	for i := start; i < end; i++ {
		v := votes[i]
		result = append(result, &v)
	}
	return result, nil
}

// Fee Store implementation
func (s *Store) GetSettings(_ context.Context) (*fee.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, ballot.ErrSettingsNotFound
	}
	cp := *s.settings
	return &cp, nil
}

func (s *Store) InitSettings(_ context.Context, settings *fee.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings == nil {
		cp := *settings
		s.settings = &cp
	}
	return nil
}

func (s *Store) ApplyChange(_ context.Context, c *fee.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ballot.ErrStoreClosed
	}
	if s.settings == nil {
		s.settings = &fee.Settings{Entity: types.NewEntityAt(c.ChangedAt)}
	}
	s.settings.TokenFeeAmount = c.Amount
	s.settings.UpdatedBy = c.UpdatedBy
	s.settings.Touch(c.ChangedAt)
	s.changes = append(s.changes, *c)
	return nil
}

func (s *Store) ListChanges(_ context.Context, opts fee.ListOpts) ([]*fee.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := window(len(s.changes), opts.Offset, opts.Limit)
	result := make([]*fee.Change, 0, end-start)
	for i := start; i < end; i++ {
		c := s.changes[i]
		result = append(result, &c)
	}
	return result, nil
}

func (s *Store) RecordWithdrawal(_ context.Context, w *fee.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ballot.ErrStoreClosed
	}
	s.withdrawals = append(s.withdrawals, *w)
	return nil
}

func (s *Store) ListWithdrawals(_ context.Context, opts fee.ListOpts) ([]*fee.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := window(len(s.withdrawals), opts.Offset, opts.Limit)
	result := make([]*fee.Withdrawal, 0, end-start)
	for i := start; i < end; i++ {
		w := s.withdrawals[i]
		result = append(result, &w)
	}
	return result, nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ballot.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// window clamps offset/limit to n items. A limit of zero means no limit.
func window(n, offset, limit int) (start, end int) {
	start = offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end = start + limit
	if limit <= 0 || end > n {
		end = n
	}
	return start, end
}
