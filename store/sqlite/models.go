package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/id"
	"github.com/xraph/ballot/project"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

// ==================== Project models ====================

type projectModel struct {
	grove.BaseModel `grove:"table:ballot_projects"`

	ID         int64     `grove:"id,pk"`
	Name       string    `grove:"name"`
	Registrant string    `grove:"registrant"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func fromProjectModel(m *projectModel) *project.Project {
	return &project.Project{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         uint64(m.ID),
		Name:       m.Name,
		Registrant: types.Address(m.Registrant),
	}
}

// ==================== Voter models ====================

type voterModel struct {
	grove.BaseModel `grove:"table:ballot_voters"`

	Address            string    `grove:"address,pk"`
	TotalVotes         int64     `grove:"total_votes"`
	FreeVotesThisMonth int64     `grove:"free_votes_this_month"`
	LastVoteMonth      int64     `grove:"last_vote_month"`
	CreatedAt          time.Time `grove:"created_at"`
	UpdatedAt          time.Time `grove:"updated_at"`
}

func fromVoterModel(m *voterModel) *voter.Voter {
	return &voter.Voter{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Address:            types.Address(m.Address),
		TotalVotes:         uint64(m.TotalVotes),
		FreeVotesThisMonth: uint32(m.FreeVotesThisMonth),
		LastVoteMonth:      voter.Month(m.LastVoteMonth),
	}
}

type voteModel struct {
	grove.BaseModel `grove:"table:ballot_votes"`

	ID                 string    `grove:"id,pk"`
	Voter              string    `grove:"voter"`
	ProjectID          int64     `grove:"project_id"`
	Seq                int64     `grove:"seq"`
	Month              int64     `grove:"month"`
	FreeVotesThisMonth int64     `grove:"free_votes_this_month"`
	Billable           bool      `grove:"billable"`
	Fee                string    `grove:"fee"`
	CastAt             time.Time `grove:"cast_at"`
}

func toVoteModel(v *voter.Vote) *voteModel {
	return &voteModel{
		ID:                 v.ID.String(),
		Voter:              v.Voter.String(),
		ProjectID:          int64(v.ProjectID),
		Seq:                int64(v.Seq),
		Month:              int64(v.Month),
		FreeVotesThisMonth: int64(v.FreeVotesThisMonth),
		Billable:           v.Billable,
		Fee:                v.Fee.String(),
		CastAt:             v.CastAt,
	}
}

func fromVoteModel(m *voteModel) (*voter.Vote, error) {
	voteID, err := id.ParseVoteID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Fee)
	if err != nil {
		return nil, err
	}
	return &voter.Vote{
		ID:                 voteID,
		Voter:              types.Address(m.Voter),
		ProjectID:          uint64(m.ProjectID),
		Seq:                uint64(m.Seq),
		Month:              voter.Month(m.Month),
		FreeVotesThisMonth: uint32(m.FreeVotesThisMonth),
		Billable:           m.Billable,
		Fee:                amount,
		CastAt:             m.CastAt,
	}, nil
}

// ==================== Fee models ====================

// settingsRowID is the primary key of the single settings row.
const settingsRowID = 1

type feeSettingsModel struct {
	grove.BaseModel `grove:"table:ballot_fee_settings"`

	ID             int64     `grove:"id,pk"`
	TokenFeeAmount string    `grove:"token_fee_amount"`
	UpdatedBy      string    `grove:"updated_by"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toFeeSettingsModel(s *fee.Settings) *feeSettingsModel {
	return &feeSettingsModel{
		ID:             settingsRowID,
		TokenFeeAmount: s.TokenFeeAmount.String(),
		UpdatedBy:      s.UpdatedBy.String(),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func fromFeeSettingsModel(m *feeSettingsModel) (*fee.Settings, error) {
	amount, err := types.ParseAmount(m.TokenFeeAmount)
	if err != nil {
		return nil, err
	}
	return &fee.Settings{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TokenFeeAmount: amount,
		UpdatedBy:      types.Address(m.UpdatedBy),
	}, nil
}

type feeChangeModel struct {
	grove.BaseModel `grove:"table:ballot_fee_changes"`

	ID        string    `grove:"id,pk"`
	Previous  string    `grove:"previous"`
	Amount    string    `grove:"amount"`
	UpdatedBy string    `grove:"updated_by"`
	ChangedAt time.Time `grove:"changed_at"`
}

func toFeeChangeModel(c *fee.Change) *feeChangeModel {
	return &feeChangeModel{
		ID:        c.ID.String(),
		Previous:  c.Previous.String(),
		Amount:    c.Amount.String(),
		UpdatedBy: c.UpdatedBy.String(),
		ChangedAt: c.ChangedAt,
	}
}

func fromFeeChangeModel(m *feeChangeModel) (*fee.Change, error) {
	changeID, err := id.ParseFeeChangeID(m.ID)
	if err != nil {
		return nil, err
	}
	previous, err := types.ParseAmount(m.Previous)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	return &fee.Change{
		ID:        changeID,
		Previous:  previous,
		Amount:    amount,
		UpdatedBy: types.Address(m.UpdatedBy),
		ChangedAt: m.ChangedAt,
	}, nil
}

type withdrawalModel struct {
	grove.BaseModel `grove:"table:ballot_withdrawals"`

	ID          string    `grove:"id,pk"`
	Owner       string    `grove:"owner"`
	Amount      string    `grove:"amount"`
	WithdrawnAt time.Time `grove:"withdrawn_at"`
}

func toWithdrawalModel(w *fee.Withdrawal) *withdrawalModel {
	return &withdrawalModel{
		ID:          w.ID.String(),
		Owner:       w.Owner.String(),
		Amount:      w.Amount.String(),
		WithdrawnAt: w.WithdrawnAt,
	}
}

func fromWithdrawalModel(m *withdrawalModel) (*fee.Withdrawal, error) {
	wID, err := id.ParseWithdrawalID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	return &fee.Withdrawal{
		ID:          wID,
		Owner:       types.Address(m.Owner),
		Amount:      amount,
		WithdrawnAt: m.WithdrawnAt,
	}, nil
}
