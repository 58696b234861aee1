package voter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/ballot/voter"
)

func TestMonthOf(t *testing.T) {
	oct := voter.MonthOf(time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC))
	nov := voter.MonthOf(time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC))
	jan := voter.MonthOf(time.Date(2027, time.January, 31, 23, 59, 0, 0, time.UTC))

	assert.Equal(t, oct+1, nov)
	assert.Equal(t, oct+3, jan)
	assert.Equal(t, "2026-10", oct.String())
	assert.Equal(t, time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC), jan.Start())
}

func TestMonthOfUsesUTC(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2026-11-01 05:00 JST is still October in UTC.
	local := time.Date(2026, time.November, 1, 5, 0, 0, 0, tokyo)
	assert.Equal(t, "2026-10", voter.MonthOf(local).String())
}

func TestAdvanceResetsOnNewMonth(t *testing.T) {
	oct := voter.MonthOf(time.Date(2026, time.October, 5, 0, 0, 0, 0, time.UTC))
	v := voter.Voter{TotalVotes: 7, FreeVotesThisMonth: 3, LastVoteMonth: oct}

	same := v.Advance(oct)
	assert.Equal(t, uint32(3), same.FreeVotesThisMonth)

	next := v.Advance(oct + 1)
	assert.Equal(t, uint32(0), next.FreeVotesThisMonth)
	assert.Equal(t, oct+1, next.LastVoteMonth)
	assert.Equal(t, uint64(7), next.TotalVotes, "total votes never reset")
}

func TestFreeQuota(t *testing.T) {
	month := voter.Month(24321)
	var v voter.Voter

	for i := 0; i < voter.FreeVotesPerMonth; i++ {
		assert.True(t, v.HasFreeVote(month), "vote %d should be free", i+1)
		v = v.Next(month, false)
	}
	assert.False(t, v.HasFreeVote(month), "fourth vote is billable")

	v = v.Next(month, true)
	assert.Equal(t, uint64(4), v.TotalVotes)
	assert.Equal(t, uint32(voter.FreeVotesPerMonth), v.FreeVotesThisMonth, "billable votes do not consume quota")

	assert.True(t, v.HasFreeVote(month+1), "quota restores next month")
}

func TestSnapshotAppliesReset(t *testing.T) {
	month := voter.Month(24321)
	v := voter.Voter{Address: "alice", TotalVotes: 3, FreeVotesThisMonth: 3, LastVoteMonth: month}

	assert.Equal(t, voter.Snapshot{Address: "alice", TotalVotes: 3, FreeVotesThisMonth: 3}, v.Snapshot(month))
	assert.Equal(t, voter.Snapshot{Address: "alice", TotalVotes: 3, FreeVotesThisMonth: 0}, v.Snapshot(month+2))
}

func TestFromVote(t *testing.T) {
	castAt := time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC)
	v := voter.FromVote(&voter.Vote{
		Voter:              "bob",
		Seq:                5,
		Month:              voter.MonthOf(castAt),
		FreeVotesThisMonth: 2,
		CastAt:             castAt,
	})

	assert.Equal(t, uint64(5), v.TotalVotes)
	assert.Equal(t, uint32(2), v.FreeVotesThisMonth)
	assert.Equal(t, voter.MonthOf(castAt), v.LastVoteMonth)
}
