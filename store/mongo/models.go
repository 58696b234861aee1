package mongo

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

	ID         int64     `grove:"id,pk"      bson:"_id"`
	Name       string    `grove:"name"       bson:"name"`
	Registrant string    `grove:"registrant" bson:"registrant,omitempty"`
	CreatedAt  time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at" bson:"updated_at"`
}

func toProjectModel(p *project.Project) *projectModel {
	return &projectModel{
		ID:         int64(p.ID),
		Name:       p.Name,
		Registrant: p.Registrant.String(),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
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

// voterModel keeps a voter's receipts inside its own document so a vote
// and the counters it changes are written by one single-document update.
type voterModel struct {
	grove.BaseModel `grove:"table:ballot_voters"`

	Address            string           `grove:"address,pk"            bson:"_id"`
	TotalVotes         int64            `grove:"total_votes"           bson:"total_votes"`
	FreeVotesThisMonth int64            `grove:"free_votes_this_month" bson:"free_votes_this_month"`
	LastVoteMonth      int64            `grove:"last_vote_month"       bson:"last_vote_month"`
	Votes              []voteEntryModel `grove:"votes"                 bson:"votes"`
	CreatedAt          time.Time        `grove:"created_at"            bson:"created_at"`
	UpdatedAt          time.Time        `grove:"updated_at"            bson:"updated_at"`
}

type voteEntryModel struct {
	ID                 string    `bson:"id"`
	ProjectID          int64     `bson:"project_id"`
	Seq                int64     `bson:"seq"`
	Month              int64     `bson:"month"`
	FreeVotesThisMonth int64     `bson:"free_votes_this_month"`
	Billable           bool      `bson:"billable"`
	Fee                string    `bson:"fee"`
	CastAt             time.Time `bson:"cast_at"`
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

func toVoteEntryModel(v *voter.Vote) voteEntryModel {
	return voteEntryModel{
		ID:                 v.ID.String(),
		ProjectID:          int64(v.ProjectID),
		Seq:                int64(v.Seq),
		Month:              int64(v.Month),
		FreeVotesThisMonth: int64(v.FreeVotesThisMonth),
		Billable:           v.Billable,
		Fee:                v.Fee.String(),
		CastAt:             v.CastAt,
	}
}

func fromVoteEntryModel(addr string, m *voteEntryModel) (*voter.Vote, error) {
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
		Voter:              types.Address(addr),
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

// settingsDocID is the _id of the single settings document.
const settingsDocID = "settings"

// feeSettingsModel embeds the fee history so a change and the new fee are
// written together.
type feeSettingsModel struct {
	grove.BaseModel `grove:"table:ballot_fee_settings"`

	ID             string           `grove:"id,pk"            bson:"_id"`
	TokenFeeAmount string           `grove:"token_fee_amount" bson:"token_fee_amount"`
	UpdatedBy      string           `grove:"updated_by"       bson:"updated_by"`
	Changes        []feeChangeModel `grove:"changes"          bson:"changes"`
	CreatedAt      time.Time        `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time        `grove:"updated_at"       bson:"updated_at"`
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
	ID        string    `bson:"id"`
	Previous  string    `bson:"previous"`
	Amount    string    `bson:"amount"`
	UpdatedBy string    `bson:"updated_by"`
	ChangedAt time.Time `bson:"changed_at"`
}

func toFeeChangeModel(c *fee.Change) feeChangeModel {
	return feeChangeModel{
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

	ID          string    `grove:"id,pk"        bson:"_id"`
	Owner       string    `grove:"owner"        bson:"owner"`
	Amount      string    `grove:"amount"       bson:"amount"`
	WithdrawnAt time.Time `grove:"withdrawn_at" bson:"withdrawn_at"`
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
