// Package fee holds fee settings, fee changes, withdrawals, and vote
// classification.
package fee

import (
	"time"

	"github.com/xraph/ballot/id"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

type Classification string

const (
	Free     Classification = "free"
	Billable Classification = "billable"
)

// Classify decides whether the next vote from v in month now costs a fee.
func Classify(v voter.Voter, now voter.Month) Classification {
	if v.HasFreeVote(now) {
		return Free
	}
	return Billable
}

// Settings is the single fee configuration row.
type Settings struct {
	types.Entity
	TokenFeeAmount types.Amount  `json:"token_fee_amount"`
	UpdatedBy      types.Address `json:"updated_by,omitempty"`
}

// Change records one owner update of the token fee.
type Change struct {
	ID        id.FeeChangeID `json:"id"`
	Previous  types.Amount   `json:"previous"`
	Amount    types.Amount   `json:"amount"`
	UpdatedBy types.Address  `json:"updated_by"`
	ChangedAt time.Time      `json:"changed_at"`
}

// Charge describes a fee pulled from a voter for a billable vote.
type Charge struct {
	Voter     types.Address `json:"voter"`
	ProjectID uint64        `json:"project_id"`
	Amount    types.Amount  `json:"amount"`
	ChargedAt time.Time     `json:"charged_at"`
}

// Withdrawal records a sweep of the system's token balance to the owner.
type Withdrawal struct {
	ID          id.WithdrawalID `json:"id"`
	Owner       types.Address   `json:"owner"`
	Amount      types.Amount    `json:"amount"`
	WithdrawnAt time.Time       `json:"withdrawn_at"`
}
