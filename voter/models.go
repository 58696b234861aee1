// Package voter models per-voter vote history and the monthly free-vote
// window.
package voter

import (
	"fmt"
	"time"

	"github.com/xraph/ballot/id"
	"github.com/xraph/ballot/types"
)

// FreeVotesPerMonth is how many votes a voter may cast without a fee in
// each calendar month.
const FreeVotesPerMonth = 3

// Month is a calendar month bucket: year*12 + (month-1), computed in UTC.
// Consecutive months differ by one.
type Month int64

// MonthOf returns the bucket t falls in.
func MonthOf(t time.Time) Month {
	t = t.UTC()
	return Month(int64(t.Year())*12 + int64(t.Month()) - 1)
}

// Start returns the first instant of the month in UTC.
func (m Month) Start() time.Time {
	year := int(m / 12)
	month := time.Month(m%12) + 1
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// String renders the month as "2026-10".
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", int64(m/12), int64(m%12)+1)
}

type Voter struct {
	types.Entity
	Address            types.Address `json:"address"`
	TotalVotes         uint64        `json:"total_votes"`
	FreeVotesThisMonth uint32        `json:"free_votes_this_month"`
	LastVoteMonth      Month         `json:"last_vote_month"`
}

// Snapshot is the public view of a voter returned by voter queries.
type Snapshot struct {
	Address            types.Address `json:"address"`
	TotalVotes         uint64        `json:"total_votes"`
	FreeVotesThisMonth uint32        `json:"free_votes_this_month"`
}

// Vote is the receipt written when a vote commits. Seq is the voter's
// running vote number (1-based), so after the commit the voter's
// TotalVotes equals Seq. FreeVotesThisMonth is the counter after the vote.
type Vote struct {
	ID                 id.VoteID     `json:"id"`
	Voter              types.Address `json:"voter"`
	ProjectID          uint64        `json:"project_id"`
	Seq                uint64        `json:"seq"`
	Month              Month         `json:"month"`
	FreeVotesThisMonth uint32        `json:"free_votes_this_month"`
	Billable           bool          `json:"billable"`
	Fee                types.Amount  `json:"fee"`
	CastAt             time.Time     `json:"cast_at"`
}

// Advance applies the monthly reset rule: when now is a different month
// from the last recorded vote, the free counter restarts at zero.
func (v Voter) Advance(now Month) Voter {
	if v.LastVoteMonth != now {
		v.FreeVotesThisMonth = 0
		v.LastVoteMonth = now
	}
	return v
}

// HasFreeVote reports whether the next vote in month now is free.
func (v Voter) HasFreeVote(now Month) bool {
	return v.Advance(now).FreeVotesThisMonth < FreeVotesPerMonth
}

// Next returns the voter state after one more vote in month now.
func (v Voter) Next(now Month, billable bool) Voter {
	next := v.Advance(now)
	next.TotalVotes++
	if !billable {
		next.FreeVotesThisMonth++
	}
	return next
}

// Snapshot returns the query view as observed in month now.
func (v Voter) Snapshot(now Month) Snapshot {
	cur := v.Advance(now)
	return Snapshot{
		Address:            v.Address,
		TotalVotes:         cur.TotalVotes,
		FreeVotesThisMonth: cur.FreeVotesThisMonth,
	}
}

// FromVote rebuilds the voter aggregate implied by its latest vote.
// Stores that derive the aggregate from the vote log use this.
func FromVote(v *Vote) Voter {
	return Voter{
		Entity: types.Entity{
			CreatedAt: v.CastAt,
			UpdatedAt: v.CastAt,
		},
		Address:            v.Voter,
		TotalVotes:         v.Seq,
		FreeVotesThisMonth: v.FreeVotesThisMonth,
		LastVoteMonth:      v.Month,
	}
}
