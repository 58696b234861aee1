package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/id"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

const testVoter = types.Address("0x00000000000000000000000000000000000000b1")

// openSchema runs every migration statement against an in-memory database
// on the SQLite engine the grove driver is built on.
func openSchema(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range []string{projectsSchema, votersSchema, votesSchema, feesSchema} {
		_, err := db.ExecContext(context.Background(), stmt)
		require.NoError(t, err)
	}
	return db
}

func insertVote(db *sql.DB, v *voter.Vote) error {
	m := toVoteModel(v)
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO ballot_votes (id, voter, project_id, seq, month, free_votes_this_month, billable, fee, cast_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Voter, m.ProjectID, m.Seq, m.Month, m.FreeVotesThisMonth, m.Billable, m.Fee,
		m.CastAt.Format(time.RFC3339Nano),
	)
	return err
}

func hasVoted(db *sql.DB, addr types.Address, projectID uint64) func() (bool, error) {
	return func() (bool, error) {
		var n int64
		err := db.QueryRowContext(context.Background(),
			`SELECT COUNT(*) FROM ballot_votes WHERE voter = ? AND project_id = ?`,
			addr.String(), int64(projectID)).Scan(&n)
		return n > 0, err
	}
}

type voterRow struct {
	total, free, month int64
}

func readVoter(t *testing.T, db *sql.DB, addr types.Address) voterRow {
	t.Helper()
	var r voterRow
	err := db.QueryRowContext(context.Background(), `
		SELECT total_votes, free_votes_this_month, last_vote_month FROM ballot_voters WHERE address = ?`,
		addr.String()).Scan(&r.total, &r.free, &r.month)
	require.NoError(t, err)
	return r
}

func newVote(projectID, seq uint64, month voter.Month, free uint32, billable bool) *voter.Vote {
	v := &voter.Vote{
		ID:                 id.NewVoteID(),
		Voter:              testVoter,
		ProjectID:          projectID,
		Seq:                seq,
		Month:              month,
		FreeVotesThisMonth: free,
		Billable:           billable,
		CastAt:             month.Start().Add(time.Hour),
	}
	if billable {
		v.Fee = types.MustParseUnits("5", 18)
	}
	return v
}

func TestVoteTriggers(t *testing.T) {
	db := openSchema(t)
	oct := voter.MonthOf(time.Date(2026, time.October, 10, 0, 0, 0, 0, time.UTC))

	require.NoError(t, insertVote(db, newVote(0, 1, oct, 1, false)))
	assert.Equal(t, voterRow{total: 1, free: 1, month: int64(oct)}, readVoter(t, db, testVoter),
		"first vote creates the aggregate")

	t.Run("duplicate project", func(t *testing.T) {
		err := insertVote(db, newVote(0, 2, oct, 2, false))
		require.Error(t, err)
		assert.True(t, isUniqueViolation(err), err.Error())
		assert.ErrorIs(t, voteCommitError(err, hasVoted(db, testVoter, 0)), ballot.ErrAlreadyVoted)
	})

	t.Run("stale sequence", func(t *testing.T) {
		err := insertVote(db, newVote(1, 1, oct, 2, false))
		require.Error(t, err)
		assert.True(t, isSeqConflict(err), err.Error())
		assert.ErrorIs(t, voteCommitError(err, hasVoted(db, testVoter, 1)), ballot.ErrVoteConflict)
	})

	t.Run("sequence gap", func(t *testing.T) {
		err := insertVote(db, newVote(1, 3, oct, 2, false))
		require.Error(t, err)
		assert.ErrorIs(t, voteCommitError(err, hasVoted(db, testVoter, 1)), ballot.ErrVoteConflict)
	})

	assert.Equal(t, voterRow{total: 1, free: 1, month: int64(oct)}, readVoter(t, db, testVoter),
		"rejected inserts leave the aggregate alone")

	require.NoError(t, insertVote(db, newVote(1, 2, oct, 1, true)))
	assert.Equal(t, voterRow{total: 2, free: 1, month: int64(oct)}, readVoter(t, db, testVoter),
		"billable vote keeps the free counter")

	nov := oct + 1
	require.NoError(t, insertVote(db, newVote(2, 3, nov, 1, false)))
	assert.Equal(t, voterRow{total: 3, free: 1, month: int64(nov)}, readVoter(t, db, testVoter))

	var votes int64
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ballot_votes`).Scan(&votes))
	assert.Equal(t, int64(3), votes)
}

func TestVoteCommitErrorWithoutRecordedPair(t *testing.T) {
	err := voteCommitError(assert.AnError, func() (bool, error) { return false, nil })
	assert.ErrorIs(t, err, assert.AnError, "unrelated errors pass through")

	unique := sqlError("UNIQUE constraint failed: ballot_votes.voter, ballot_votes.seq")
	err = voteCommitError(unique, func() (bool, error) { return false, nil })
	assert.ErrorIs(t, err, ballot.ErrVoteConflict, "seq taken by a concurrent commit")

	assert.NoError(t, voteCommitError(nil, nil))
}

type sqlError string

func (e sqlError) Error() string { return string(e) }

func TestFeeChangeTrigger(t *testing.T) {
	db := openSchema(t)
	ctx := context.Background()
	owner := types.Address("0x00000000000000000000000000000000000000a1")
	at := time.Date(2026, time.October, 10, 12, 0, 0, 0, time.UTC)

	initial := toFeeSettingsModel(&fee.Settings{
		Entity:         types.Entity{CreatedAt: at, UpdatedAt: at},
		TokenFeeAmount: types.MustParseUnits("5", 18),
	})
	_, err := db.ExecContext(ctx, `
		INSERT INTO ballot_fee_settings (id, token_fee_amount, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		initial.ID, initial.TokenFeeAmount, initial.UpdatedBy,
		at.Format(time.RFC3339Nano), at.Format(time.RFC3339Nano))
	require.NoError(t, err)

	apply := func(amount types.Amount, previous types.Amount) {
		m := toFeeChangeModel(&fee.Change{
			ID:        id.NewFeeChangeID(),
			Previous:  previous,
			Amount:    amount,
			UpdatedBy: owner,
			ChangedAt: at,
		})
		_, err := db.ExecContext(ctx, `
			INSERT INTO ballot_fee_changes (id, previous, amount, updated_by, changed_at)
			VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.Previous, m.Amount, m.UpdatedBy, m.ChangedAt.Format(time.RFC3339Nano))
		require.NoError(t, err)
	}

	current := func() *fee.Settings {
		m := new(feeSettingsModel)
		err := db.QueryRowContext(ctx,
			`SELECT id, token_fee_amount, updated_by FROM ballot_fee_settings WHERE id = ?`, settingsRowID).
			Scan(&m.ID, &m.TokenFeeAmount, &m.UpdatedBy)
		require.NoError(t, err)
		s, err := fromFeeSettingsModel(m)
		require.NoError(t, err)
		return s
	}

	apply(types.MustParseUnits("7", 18), types.MustParseUnits("5", 18))
	s := current()
	assert.Equal(t, types.MustParseUnits("7", 18), s.TokenFeeAmount)
	assert.Equal(t, owner, s.UpdatedBy)

	apply(types.NewAmount(0), types.MustParseUnits("7", 18))
	assert.True(t, current().TokenFeeAmount.IsZero())

	var rows int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ballot_fee_settings`).Scan(&rows))
	assert.Equal(t, int64(1), rows, "changes update the single settings row")
}
