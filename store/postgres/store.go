package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/project"
	ballotstore "github.com/xraph/ballot/store"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

// compile-time interface check
var _ ballotstore.Store = (*Store)(nil)

// registerAttempts bounds retries when two registrations race for the
// same project id.
const registerAttempts = 5

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables, indexes and triggers using the
// grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("ballot/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("ballot/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Project Store ====================

// Register assigns the next id in the same statement that inserts the row.
func (s *Store) Register(ctx context.Context, p *project.Project) error {
	if p.CreatedAt.IsZero() {
		p.Entity = types.NewEntityAt(now())
	}

	var err error
	for range registerAttempts {
		var assigned int64
		err = s.pg.NewRaw(`
			INSERT INTO ballot_projects (id, name, registrant, created_at, updated_at)
			SELECT COALESCE(MAX(id) + 1, 0), $1::text, $2::text, $3::timestamptz, $4::timestamptz FROM ballot_projects
			RETURNING id
		`, p.Name, p.Registrant.String(), p.CreatedAt, p.UpdatedAt).Scan(ctx, &assigned)
		if err == nil {
			p.ID = uint64(assigned)
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
	}
	return fmt.Errorf("ballot/postgres: register project: %w", err)
}

func (s *Store) Get(ctx context.Context, projectID uint64) (*project.Project, error) {
	m := new(projectModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", int64(projectID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ballot.ErrInvalidProjectID
		}
		return nil, err
	}
	return fromProjectModel(m), nil
}

func (s *Store) List(ctx context.Context, opts project.ListOpts) ([]*project.Project, error) {
	var models []projectModel
	q := s.pg.NewSelect(&models)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*project.Project, len(models))
	for i := range models {
		result[i] = fromProjectModel(&models[i])
	}
	return result, nil
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	var count int64
	if err := s.pg.NewRaw(`SELECT COUNT(*) FROM ballot_projects`).Scan(ctx, &count); err != nil {
		return 0, err
	}
	return uint64(count), nil
}

// ==================== Voter Store ====================

func (s *Store) GetVoter(ctx context.Context, addr types.Address) (*voter.Voter, error) {
	m := new(voterModel)
	err := s.pg.NewSelect(m).
		Where("address = $1", addr.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ballot.ErrVoterNotFound
		}
		return nil, err
	}
	return fromVoterModel(m), nil
}

func (s *Store) HasVoted(ctx context.Context, addr types.Address, projectID uint64) (bool, error) {
	var count int64
	err := s.pg.NewRaw(`
		SELECT COUNT(*) FROM ballot_votes WHERE voter = $1 AND project_id = $2
	`, addr.String(), int64(projectID)).Scan(ctx, &count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordVote inserts the vote row; the ballot_votes_apply trigger locks
// the voter, validates the sequence number and updates ballot_voters
// within the same statement.
func (s *Store) RecordVote(ctx context.Context, v *voter.Vote) error {
	_, err := s.pg.NewInsert(toVoteModel(v)).Exec(ctx)
	if err == nil {
		return nil
	}
	if isSeqConflict(err) {
		return ballot.ErrVoteConflict
	}
	if isUniqueViolation(err) {
		voted, herr := s.HasVoted(ctx, v.Voter, v.ProjectID)
		if herr == nil && voted {
			return ballot.ErrAlreadyVoted
		}
		return ballot.ErrVoteConflict
	}
	return err
}

func (s *Store) ListVotes(ctx context.Context, addr types.Address, opts voter.ListOpts) ([]*voter.Vote, error) {
	var models []voteModel
	q := s.pg.NewSelect(&models).Where("voter = $1", addr.String())

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*voter.Vote, len(models))
	for i := range models {
		v, err := fromVoteModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

// ==================== Fee Store ====================

func (s *Store) GetSettings(ctx context.Context) (*fee.Settings, error) {
	m := new(feeSettingsModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", settingsRowID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ballot.ErrSettingsNotFound
		}
		return nil, err
	}
	return fromFeeSettingsModel(m)
}

func (s *Store) InitSettings(ctx context.Context, settings *fee.Settings) error {
	_, err := s.pg.NewInsert(toFeeSettingsModel(settings)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return err
}

// ApplyChange inserts the change row; a trigger copies the amount into
// the settings row within the same statement.
func (s *Store) ApplyChange(ctx context.Context, c *fee.Change) error {
	_, err := s.pg.NewInsert(toFeeChangeModel(c)).Exec(ctx)
	return err
}

func (s *Store) ListChanges(ctx context.Context, opts fee.ListOpts) ([]*fee.Change, error) {
	var models []feeChangeModel
	q := s.pg.NewSelect(&models)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("changed_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*fee.Change, len(models))
	for i := range models {
		c, err := fromFeeChangeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) RecordWithdrawal(ctx context.Context, w *fee.Withdrawal) error {
	_, err := s.pg.NewInsert(toWithdrawalModel(w)).Exec(ctx)
	return err
}

func (s *Store) ListWithdrawals(ctx context.Context, opts fee.ListOpts) ([]*fee.Withdrawal, error) {
	var models []withdrawalModel
	q := s.pg.NewSelect(&models)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("withdrawn_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*fee.Withdrawal, len(models))
	for i := range models {
		w, err := fromWithdrawalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = w
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key value")
}

// isSeqConflict matches the exception raised by ballot_votes_apply().
func isSeqConflict(err error) bool {
	return strings.Contains(err.Error(), "vote sequence conflict")
}
