package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/project"
	ballotstore "github.com/xraph/ballot/store"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

// Collection name constants.
const (
	colProjects    = "ballot_projects"
	colVoters      = "ballot_voters"
	colFeeSettings = "ballot_fee_settings"
	colWithdrawals = "ballot_withdrawals"
)

// registerAttempts bounds retries when two registrations race for the
// same project id.
const registerAttempts = 5

// compile-time interface check
var _ ballotstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all ballot collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("ballot/mongo: migrate %s indexes: %w", col, err)
		}
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

// Register takes the current document count as the id. A concurrent
// registration that took the same id fails on _id and is retried.
func (s *Store) Register(ctx context.Context, p *project.Project) error {
	if p.CreatedAt.IsZero() {
		p.Entity = types.NewEntityAt(now())
	}

	for range registerAttempts {
		count, err := s.mdb.Collection(colProjects).CountDocuments(ctx, bson.M{})
		if err != nil {
			return fmt.Errorf("ballot/mongo: count projects: %w", err)
		}
		p.ID = uint64(count)

		_, err = s.mdb.NewInsert(toProjectModel(p)).Exec(ctx)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("ballot/mongo: register project: %w", err)
		}
	}
	return fmt.Errorf("ballot/mongo: register project: id contention after %d attempts", registerAttempts)
}

func (s *Store) Get(ctx context.Context, projectID uint64) (*project.Project, error) {
	var m projectModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(projectID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ballot.ErrInvalidProjectID
		}
		return nil, fmt.Errorf("ballot/mongo: get project: %w", err)
	}
	return fromProjectModel(&m), nil
}

func (s *Store) List(ctx context.Context, opts project.ListOpts) ([]*project.Project, error) {
	var models []projectModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ballot/mongo: list projects: %w", err)
	}

	result := make([]*project.Project, len(models))
	for i := range models {
		result[i] = fromProjectModel(&models[i])
	}
	return result, nil
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	count, err := s.mdb.Collection(colProjects).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("ballot/mongo: count projects: %w", err)
	}
	return uint64(count), nil
}

// ==================== Voter Store ====================

func (s *Store) getVoterModel(ctx context.Context, addr types.Address) (*voterModel, error) {
	var m voterModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": addr.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ballot.ErrVoterNotFound
		}
		return nil, fmt.Errorf("ballot/mongo: get voter: %w", err)
	}
	return &m, nil
}

func (s *Store) GetVoter(ctx context.Context, addr types.Address) (*voter.Voter, error) {
	m, err := s.getVoterModel(ctx, addr)
	if err != nil {
		return nil, err
	}
	return fromVoterModel(m), nil
}

func (s *Store) HasVoted(ctx context.Context, addr types.Address, projectID uint64) (bool, error) {
	count, err := s.mdb.Collection(colVoters).CountDocuments(ctx, bson.M{
		"_id":              addr.String(),
		"votes.project_id": int64(projectID),
	})
	if err != nil {
		return false, fmt.Errorf("ballot/mongo: has voted: %w", err)
	}
	return count > 0, nil
}

// RecordVote appends the vote to the voter document and sets the counters
// in one conditional update. The filter only matches when the stored total
// is v.Seq-1 and the project is not yet in the voter's receipts; the first
// vote upserts the document.
func (s *Store) RecordVote(ctx context.Context, v *voter.Vote) error {
	filter := bson.M{
		"_id":              v.Voter.String(),
		"total_votes":      int64(v.Seq) - 1,
		"votes.project_id": bson.M{"$ne": int64(v.ProjectID)},
	}
	update := bson.M{
		"$set": bson.M{
			"total_votes":           int64(v.Seq),
			"free_votes_this_month": int64(v.FreeVotesThisMonth),
			"last_vote_month":       int64(v.Month),
			"updated_at":            v.CastAt,
		},
		"$push":        bson.M{"votes": toVoteEntryModel(v)},
		"$setOnInsert": bson.M{"created_at": v.CastAt},
	}

	res, err := s.mdb.Collection(colVoters).UpdateOne(ctx, filter, update,
		options.UpdateOne().SetUpsert(v.Seq == 1))
	switch {
	case err == nil && (res.MatchedCount > 0 || res.UpsertedCount > 0):
		return nil
	case err != nil && !mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("ballot/mongo: record vote: %w", err)
	}

	// Nothing matched, or the upsert collided with an existing voter.
	voted, err := s.HasVoted(ctx, v.Voter, v.ProjectID)
	if err != nil {
		return err
	}
	if voted {
		return ballot.ErrAlreadyVoted
	}
	return ballot.ErrVoteConflict
}

func (s *Store) ListVotes(ctx context.Context, addr types.Address, opts voter.ListOpts) ([]*voter.Vote, error) {
	m, err := s.getVoterModel(ctx, addr)
	if errors.Is(err, ballot.ErrVoterNotFound) {
		return []*voter.Vote{}, nil
	}
	if err != nil {
		return nil, err
	}

	start, end := window(len(m.Votes), opts.Offset, opts.Limit)
	result := make([]*voter.Vote, 0, end-start)
	for i := start; i < end; i++ {
		v, err := fromVoteEntryModel(m.Address, &m.Votes[i])
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

// ==================== Fee Store ====================

func (s *Store) getSettingsModel(ctx context.Context) (*feeSettingsModel, error) {
	var m feeSettingsModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": settingsDocID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ballot.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("ballot/mongo: get fee settings: %w", err)
	}
	return &m, nil
}

func (s *Store) GetSettings(ctx context.Context) (*fee.Settings, error) {
	m, err := s.getSettingsModel(ctx)
	if err != nil {
		return nil, err
	}
	return fromFeeSettingsModel(m)
}

func (s *Store) InitSettings(ctx context.Context, settings *fee.Settings) error {
	_, err := s.mdb.Collection(colFeeSettings).UpdateOne(ctx,
		bson.M{"_id": settingsDocID},
		bson.M{"$setOnInsert": bson.M{
			"token_fee_amount": settings.TokenFeeAmount.String(),
			"updated_by":       settings.UpdatedBy.String(),
			"changes":          bson.A{},
			"created_at":       settings.CreatedAt,
			"updated_at":       settings.UpdatedAt,
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ballot/mongo: init fee settings: %w", err)
	}
	return nil
}

// ApplyChange sets the fee and appends c to the history in one update.
func (s *Store) ApplyChange(ctx context.Context, c *fee.Change) error {
	_, err := s.mdb.Collection(colFeeSettings).UpdateOne(ctx,
		bson.M{"_id": settingsDocID},
		bson.M{
			"$set": bson.M{
				"token_fee_amount": c.Amount.String(),
				"updated_by":       c.UpdatedBy.String(),
				"updated_at":       c.ChangedAt,
			},
			"$push":        bson.M{"changes": toFeeChangeModel(c)},
			"$setOnInsert": bson.M{"created_at": c.ChangedAt},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ballot/mongo: apply fee change: %w", err)
	}
	return nil
}

func (s *Store) ListChanges(ctx context.Context, opts fee.ListOpts) ([]*fee.Change, error) {
	m, err := s.getSettingsModel(ctx)
	if errors.Is(err, ballot.ErrSettingsNotFound) {
		return []*fee.Change{}, nil
	}
	if err != nil {
		return nil, err
	}

	start, end := window(len(m.Changes), opts.Offset, opts.Limit)
	result := make([]*fee.Change, 0, end-start)
	for i := start; i < end; i++ {
		c, err := fromFeeChangeModel(&m.Changes[i])
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

func (s *Store) RecordWithdrawal(ctx context.Context, w *fee.Withdrawal) error {
	_, err := s.mdb.NewInsert(toWithdrawalModel(w)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("ballot/mongo: record withdrawal: %w", err)
	}
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, opts fee.ListOpts) ([]*fee.Withdrawal, error) {
	var models []withdrawalModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "withdrawn_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ballot/mongo: list withdrawals: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// window clamps offset/limit over an embedded array of n items.
func window(n, offset, limit int) (start, end int) {
	start = min(max(offset, 0), n)
	end = n
	if limit > 0 && start+limit < n {
		end = start + limit
	}
	return start, end
}

// migrationIndexes returns the index definitions for all ballot collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colVoters: {
			{Keys: bson.D{{Key: "votes.project_id", Value: 1}}},
		},
		colWithdrawals: {
			{Keys: bson.D{{Key: "withdrawn_at", Value: 1}}},
		},
	}
}
