package ballot_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/project"
	"github.com/xraph/ballot/store/memory"
	tokenmem "github.com/xraph/ballot/token/memory"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

const (
	owner  = types.Address("0x00000000000000000000000000000000000000a1")
	system = types.Address("0x00000000000000000000000000000000000000f0")
	alice  = types.Address("0x00000000000000000000000000000000000000b1")
	bob    = types.Address("0x00000000000000000000000000000000000000b2")
)

var fee5 = types.MustParseUnits("5", 18)

type harness struct {
	engine *ballot.Engine
	token  *tokenmem.Token
	store  *memory.Store
	clock  *clock.Mock
}

func newHarness(t *testing.T, opts ...ballot.Option) *harness {
	t.Helper()

	h := &harness{
		token: tokenmem.New(types.DefaultUnit),
		store: memory.New(),
		clock: clock.NewMock(),
	}
	h.clock.Set(time.Date(2026, time.October, 10, 12, 0, 0, 0, time.UTC))

	opts = append([]ballot.Option{ballot.WithClock(h.clock)}, opts...)
	engine, err := ballot.New(h.store, h.token.Session(system), owner, fee5, opts...)
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Stop() })

	h.engine = engine
	return h
}

func (h *harness) registerProjects(t *testing.T, n int) {
	t.Helper()
	for i := range n {
		_, err := h.engine.RegisterProject(context.Background(), fmt.Sprintf("Project %d", i+1))
		require.NoError(t, err)
	}
}

func as(addr types.Address) context.Context {
	return ballot.WithCaller(context.Background(), addr)
}

func TestNewValidates(t *testing.T) {
	tok := tokenmem.New(types.DefaultUnit)

	_, err := ballot.New(nil, tok.Session(system), owner, fee5)
	assert.ErrorIs(t, err, ballot.ErrInvalidInput)

	_, err = ballot.New(memory.New(), nil, owner, fee5)
	assert.ErrorIs(t, err, ballot.ErrInvalidInput)

	_, err = ballot.New(memory.New(), tok.Session(system), "", fee5)
	var ve ballot.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "owner", ve.Field)
}

func TestRegisterProjectSequentialIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := range 5 {
		p, err := h.engine.RegisterProject(ctx, fmt.Sprintf("Project %d", i+1))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), p.ID)
	}

	p, err := h.engine.ProjectDetails(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Project 1", p.Name)

	count, err := h.engine.ProjectCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)

	_, err = h.engine.ProjectDetails(ctx, 5)
	assert.ErrorIs(t, err, ballot.ErrInvalidProjectID)
}

func TestRegisterProjectRecordsRegistrant(t *testing.T) {
	h := newHarness(t)

	p, err := h.engine.RegisterProject(as(alice), "")
	require.NoError(t, err)
	assert.Equal(t, alice, p.Registrant)
	assert.Empty(t, p.Name)
}

func TestListProjects(t *testing.T) {
	h := newHarness(t)
	h.registerProjects(t, 4)

	page, err := h.engine.ListProjects(context.Background(), project.ListOpts{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(1), page[0].ID)
	assert.Equal(t, "Project 3", page[1].Name)

	assert.Equal(t, owner, h.engine.Owner())
	assert.Equal(t, system, h.engine.SystemAccount())
}

func TestThreeFreeVotesThenCharge(t *testing.T) {
	h := newHarness(t)
	h.registerProjects(t, 4)

	h.token.Mint(alice, types.MustParseUnits("100", 18))
	h.token.Approve(alice, system, fee5)

	for pid := range uint64(3) {
		v, err := h.engine.CastVote(as(alice), pid)
		require.NoError(t, err)
		assert.False(t, v.Billable)
		assert.True(t, v.Fee.IsZero())
	}

	snap, err := h.engine.VoterDetails(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.TotalVotes)
	assert.Equal(t, uint32(3), snap.FreeVotesThisMonth)
	assert.Equal(t, types.MustParseUnits("100", 18), h.token.Balance(alice), "free votes charge nothing")

	v, err := h.engine.CastVote(as(alice), 3)
	require.NoError(t, err)
	assert.True(t, v.Billable)
	assert.Equal(t, fee5, v.Fee)
	assert.Equal(t, uint64(4), v.Seq)

	assert.Equal(t, types.MustParseUnits("95", 18), h.token.Balance(alice))
	assert.Equal(t, fee5, h.token.Balance(system))

	snap, err = h.engine.VoterDetails(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), snap.TotalVotes)
	assert.Equal(t, uint32(3), snap.FreeVotesThisMonth, "billable votes do not use the free quota")
}

func TestAlreadyVoted(t *testing.T) {
	h := newHarness(t)
	h.registerProjects(t, 1)

	_, err := h.engine.CastVote(as(alice), 0)
	require.NoError(t, err)

	_, err = h.engine.CastVote(as(alice), 0)
	assert.ErrorIs(t, err, ballot.ErrAlreadyVoted)

	snap, err := h.engine.VoterDetails(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.TotalVotes)

	// once ever, not once per month
	h.clock.Add(45 * 24 * time.Hour)
	_, err = h.engine.CastVote(as(alice), 0)
	assert.ErrorIs(t, err, ballot.ErrAlreadyVoted)
}

func TestInvalidProjectID(t *testing.T) {
	h := newHarness(t)
	h.registerProjects(t, 4)

	_, err := h.engine.CastVote(as(alice), 10)
	assert.ErrorIs(t, err, ballot.ErrInvalidProjectID)
}

func TestCastVoteRequiresCaller(t *testing.T) {
	h := newHarness(t)
	h.registerProjects(t, 1)

	_, err := h.engine.CastVote(context.Background(), 0)
	assert.ErrorIs(t, err, ballot.ErrMissingCaller)
	assert.True(t, ballot.IsAccessError(err))
}

func TestFeeChargeFailureLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		balance types.Amount
		allow   types.Amount
	}{
		{"no allowance", types.MustParseUnits("100", 18), types.Amount{}},
		{"low allowance", types.MustParseUnits("100", 18), types.MustParseUnits("4", 18)},
		{"low balance", types.MustParseUnits("1", 18), fee5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.registerProjects(t, 4)
			h.token.Mint(alice, tt.balance)
			h.token.Approve(alice, system, tt.allow)

			for pid := range uint64(3) {
				_, err := h.engine.CastVote(as(alice), pid)
				require.NoError(t, err)
			}

			_, err := h.engine.CastVote(as(alice), 3)
			require.ErrorIs(t, err, ballot.ErrFeeTransferFailed)

			snap, err := h.engine.VoterDetails(context.Background(), alice)
			require.NoError(t, err)
			assert.Equal(t, uint64(3), snap.TotalVotes)
			assert.Equal(t, uint32(3), snap.FreeVotesThisMonth)

			voted, err := h.engine.HasVoted(context.Background(), alice, 3)
			require.NoError(t, err)
			assert.False(t, voted)
			assert.Equal(t, tt.balance, h.token.Balance(alice))

			// after approving, the same vote goes through
			h.token.Mint(alice, fee5)
			h.token.Approve(alice, system, fee5)
			_, err = h.engine.CastVote(as(alice), 3)
			require.NoError(t, err)
		})
	}
}

func TestMonthlyReset(t *testing.T) {
	h := newHarness(t)
	h.registerProjects(t, 7)
	h.token.Mint(alice, types.MustParseUnits("100", 18))
	h.token.Approve(alice, system, types.MustParseUnits("100", 18))

	for pid := range uint64(4) {
		_, err := h.engine.CastVote(as(alice), pid)
		require.NoError(t, err)
	}
	assert.Equal(t, fee5, h.token.Balance(system))

	// last day of the month is still the same window
	h.clock.Set(time.Date(2026, time.October, 31, 23, 59, 59, 0, time.UTC))
	v, err := h.engine.CastVote(as(alice), 4)
	require.NoError(t, err)
	assert.True(t, v.Billable)

	h.clock.Set(time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC))

	snap, err := h.engine.VoterDetails(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), snap.FreeVotesThisMonth, "a new month reads as reset before any vote")
	assert.Equal(t, uint64(5), snap.TotalVotes)

	v, err = h.engine.CastVote(as(alice), 5)
	require.NoError(t, err)
	assert.False(t, v.Billable)
	assert.Equal(t, uint32(1), v.FreeVotesThisMonth)
	assert.Equal(t, voter.MonthOf(h.clock.Now()), v.Month)
}

func TestVoterDetailsUnknownVoter(t *testing.T) {
	h := newHarness(t)

	snap, err := h.engine.VoterDetails(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, bob, snap.Address)
	assert.Zero(t, snap.TotalVotes)
	assert.Zero(t, snap.FreeVotesThisMonth)
}

func TestOwnerOnlyOperations(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.WithdrawFees(as(alice))
	assert.ErrorIs(t, err, ballot.ErrUnauthorized)

	_, err = h.engine.UpdateTokenFees(as(alice), types.NewAmount(1))
	assert.ErrorIs(t, err, ballot.ErrUnauthorized)

	_, err = h.engine.WithdrawFees(context.Background())
	assert.ErrorIs(t, err, ballot.ErrMissingCaller)

	amount, err := h.engine.TokenFeeAmount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fee5, amount, "rejected update leaves the fee")
}

func TestUpdateTokenFees(t *testing.T) {
	h := newHarness(t)
	h.registerProjects(t, 4)
	newFee := types.MustParseUnits("2.5", 18)

	// checksummed spelling of the owner is the owner
	upper := types.Address("0x00000000000000000000000000000000000000A1")
	c, err := h.engine.UpdateTokenFees(as(upper), newFee)
	require.NoError(t, err)
	assert.Equal(t, fee5, c.Previous)
	assert.Equal(t, newFee, c.Amount)

	amount, err := h.engine.TokenFeeAmount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, newFee, amount)

	h.token.Mint(alice, types.MustParseUnits("10", 18))
	h.token.Approve(alice, system, types.MustParseUnits("10", 18))
	for pid := range uint64(4) {
		_, err := h.engine.CastVote(as(alice), pid)
		require.NoError(t, err)
	}
	assert.Equal(t, newFee, h.token.Balance(system), "next billable vote uses the new fee")

	changes, err := h.engine.ListFeeChanges(context.Background(), fee.ListOpts{})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, c.ID, changes[0].ID)
}

func TestWithdrawFeesSweepsBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// tokens sent straight to the system account are swept too
	h.token.Mint(system, types.MustParseUnits("1000", 18))

	collected, err := h.engine.CollectedFees(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.MustParseUnits("1000", 18), collected)

	w, err := h.engine.WithdrawFees(as(owner))
	require.NoError(t, err)
	assert.False(t, w.ID.IsNil())
	assert.Equal(t, types.MustParseUnits("1000", 18), w.Amount)

	assert.Equal(t, types.MustParseUnits("1000", 18), h.token.Balance(owner))
	assert.True(t, h.token.Balance(system).IsZero())

	collected, err = h.engine.CollectedFees(ctx)
	require.NoError(t, err)
	assert.True(t, collected.IsZero())

	withdrawals, err := h.engine.ListWithdrawals(ctx, fee.ListOpts{})
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)
	assert.Equal(t, w.ID, withdrawals[0].ID)
}

func TestWithdrawNothing(t *testing.T) {
	h := newHarness(t)

	w, err := h.engine.WithdrawFees(as(owner))
	require.NoError(t, err)
	assert.True(t, w.ID.IsNil())
	assert.True(t, w.Amount.IsZero())

	withdrawals, err := h.engine.ListWithdrawals(context.Background(), fee.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, withdrawals)
}

func TestInitialFeeKeptAcrossRestart(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.UpdateTokenFees(as(owner), types.NewAmount(7))
	require.NoError(t, err)

	again, err := ballot.New(h.store, h.token.Session(system), owner, fee5)
	require.NoError(t, err)
	require.NoError(t, again.Start(context.Background()))

	amount, err := again.TokenFeeAmount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.NewAmount(7), amount)
}

func TestConcurrentVotesSameVoter(t *testing.T) {
	h := newHarness(t)
	h.registerProjects(t, 8)
	h.token.Mint(alice, types.MustParseUnits("100", 18))
	h.token.Approve(alice, system, types.MustParseUnits("100", 18))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	// every project twice: exactly one of each pair may succeed
	for pid := range uint64(8) {
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.engine.CastVote(as(alice), pid)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}()
		}
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ballot.ErrAlreadyVoted):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 8, ok)
	assert.Equal(t, 8, dup)

	snap, err := h.engine.VoterDetails(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), snap.TotalVotes)
	assert.Equal(t, uint32(3), snap.FreeVotesThisMonth)
	assert.Equal(t, types.MustParseUnits("25", 18), h.token.Balance(system), "five billable votes")
}

func TestListVotes(t *testing.T) {
	h := newHarness(t)
	h.registerProjects(t, 3)

	for _, pid := range []uint64{2, 0, 1} {
		_, err := h.engine.CastVote(as(bob), pid)
		require.NoError(t, err)
	}

	votes, err := h.engine.ListVotes(context.Background(), bob, voter.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, votes, 2)
	assert.Equal(t, uint64(2), votes[0].ProjectID)
	assert.Equal(t, uint64(1), votes[0].Seq)
	assert.Equal(t, uint64(0), votes[1].ProjectID)
}

// conflictStore makes the first vote commit lose a race.
type conflictStore struct {
	*memory.Store
	once sync.Once
}

func (s *conflictStore) RecordVote(ctx context.Context, v *voter.Vote) error {
	var err error
	s.once.Do(func() { err = ballot.ErrVoteConflict })
	if err != nil {
		return err
	}
	return s.Store.RecordVote(ctx, v)
}

func TestRefundOnCommitConflict(t *testing.T) {
	tok := tokenmem.New(types.DefaultUnit)
	clk := clock.NewMock()
	st := memory.New()
	ctx := context.Background()

	// three free votes go in directly, then the store starts failing once
	engine, err := ballot.New(st, tok.Session(system), owner, fee5, ballot.WithClock(clk))
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx))
	for i := range 4 {
		_, err := engine.RegisterProject(ctx, fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}
	for pid := range uint64(3) {
		_, err := engine.CastVote(as(alice), pid)
		require.NoError(t, err)
	}

	engine, err = ballot.New(&conflictStore{Store: st}, tok.Session(system), owner, fee5, ballot.WithClock(clk))
	require.NoError(t, err)

	tok.Mint(alice, fee5)
	tok.Approve(alice, system, types.MustParseUnits("10", 18))

	_, err = engine.CastVote(as(alice), 3)
	require.ErrorIs(t, err, ballot.ErrVoteConflict)
	assert.True(t, ballot.IsRetryable(err))
	assert.Equal(t, fee5, tok.Balance(alice), "charge refunded")
	assert.True(t, tok.Balance(system).IsZero())

	v, err := engine.CastVote(as(alice), 3)
	require.NoError(t, err)
	assert.True(t, v.Billable)
	assert.Equal(t, fee5, tok.Balance(system))
}
