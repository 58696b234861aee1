package ballot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/id"
	"github.com/xraph/ballot/lock"
	"github.com/xraph/ballot/plugin"
	"github.com/xraph/ballot/project"
	"github.com/xraph/ballot/store"
	"github.com/xraph/ballot/token"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

// DefaultTokenFee is the deploy-time fee: 5 tokens of 18 decimals.
var DefaultTokenFee = types.MustParseUnits("5", 18)

// Engine is the voting service. It composes the project registry, the
// voter ledger and fee accounting, and enforces owner-only access to fee
// administration.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   clock.Clock
	locker  lock.Locker

	initialFee  types.Amount
	unit        types.Unit
	cacheSize   int
	skipMigrate bool

	projects *ProjectRegistry
	voters   *VoterLedger
	fees     *FeeAccounting
}

// New creates an Engine. ledger is the token collaborator: its Account is
// the system account fees are collected into. owner is fixed for the
// engine's lifetime. initialFee is stored on first Start and ignored when
// a fee is already configured.
func New(s store.Store, ledger token.Ledger, owner types.Address, initialFee types.Amount, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, ValidationError{Field: "store", Message: "is required"}
	}
	if ledger == nil {
		return nil, ValidationError{Field: "token", Message: "is required"}
	}
	owner = types.NormalizeAddress(string(owner))
	if owner.IsZero() {
		return nil, ValidationError{Field: "owner", Message: "is required"}
	}

	e := &Engine{
		store:      s,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		clock:      clock.New(),
		locker:     lock.NewKeyed(),
		initialFee: initialFee,
		unit:       types.DefaultUnit,
		cacheSize:  DefaultProjectCacheSize,
	}

	for _, opt := range opts {
		opt(e)
	}

	projects, err := NewProjectRegistry(s, e.cacheSize)
	if err != nil {
		return nil, err
	}
	e.projects = projects
	e.voters = NewVoterLedger(s)
	e.fees = NewFeeAccounting(s, ledger, owner, e.logger)

	return e, nil
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the time source used for month windows and timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLocker sets how votes from the same voter are serialized. The
// default only covers a single process; use lock.NewRedis when several
// engines share a store.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithProjectCacheSize sets the project cache size. Zero disables it.
func WithProjectCacheSize(n int) Option {
	return func(e *Engine) { e.cacheSize = n }
}

// WithUnit sets how fee amounts are presented.
func WithUnit(u types.Unit) Option {
	return func(e *Engine) { e.unit = u }
}

// WithoutMigrate skips schema migration on Start, for deployments that
// migrate out of band.
func WithoutMigrate() Option {
	return func(e *Engine) { e.skipMigrate = true }
}

// Start migrates the store, stores the initial fee and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}
	if err := e.fees.Init(ctx, e.initialFee, e.now()); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("ballot started",
		"owner", e.Owner().String(),
		"system_account", e.SystemAccount().String(),
		"initial_fee", e.unit.Format(e.initialFee),
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop notifies plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Owner returns the identity allowed to withdraw fees and change the fee.
func (e *Engine) Owner() types.Address { return e.fees.Owner() }

// SystemAccount returns the account billable-vote fees are collected into.
func (e *Engine) SystemAccount() types.Address { return e.fees.SystemAccount() }

// Unit returns the fee presentation unit.
func (e *Engine) Unit() types.Unit { return e.unit }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

func (e *Engine) now() time.Time { return e.clock.Now().UTC() }

// ──────────────────────────────────────────────────
// Projects
// ──────────────────────────────────────────────────

// RegisterProject registers a project. Anyone may register; the caller on
// ctx, if any, is kept as the registrant.
func (e *Engine) RegisterProject(ctx context.Context, name string) (*project.Project, error) {
	registrant, _ := CallerFrom(ctx)

	p, err := e.projects.Register(ctx, name, registrant, types.NewEntityAt(e.now()))
	if err != nil {
		return nil, err
	}

	e.logger.Debug("project registered", "project_id", p.ID, "name", p.Name)
	e.plugins.EmitProjectRegistered(ctx, p)
	return p, nil
}

// ProjectDetails returns a project or ErrInvalidProjectID.
func (e *Engine) ProjectDetails(ctx context.Context, projectID uint64) (*project.Project, error) {
	return e.projects.Get(ctx, projectID)
}

// ProjectCount returns how many projects have been registered.
func (e *Engine) ProjectCount(ctx context.Context) (uint64, error) {
	return e.projects.Count(ctx)
}

// ListProjects returns projects ordered by id.
func (e *Engine) ListProjects(ctx context.Context, opts project.ListOpts) ([]*project.Project, error) {
	return e.projects.List(ctx, opts)
}

// ──────────────────────────────────────────────────
// Voting
// ──────────────────────────────────────────────────

// CastVote records a vote from the caller on ctx for projectID.
//
// The first FreeVotesPerMonth votes in a calendar month are free; later
// ones pull the current fee into the system account before the vote is
// recorded. A declined pull aborts the vote with nothing recorded. If the
// vote cannot be committed after a fee was pulled, the fee is refunded.
func (e *Engine) CastVote(ctx context.Context, projectID uint64) (*voter.Vote, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := e.projects.Get(ctx, projectID); err != nil {
		return nil, e.reject(ctx, caller, projectID, err)
	}

	unlock, err := e.locker.Lock(ctx, "voter:"+caller.String())
	if err != nil {
		return nil, fmt.Errorf("ballot: lock voter %s: %w", caller, err)
	}
	defer unlock()

	voted, err := e.voters.HasVoted(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, e.reject(ctx, caller, projectID, ErrAlreadyVoted)
	}

	current, err := e.voters.Load(ctx, caller)
	if err != nil {
		return nil, err
	}

	now := e.now()
	month := voter.MonthOf(now)
	billable := e.fees.Classify(current, month) == fee.Billable
	next := current.Next(month, billable)

	v := &voter.Vote{
		ID:                 id.NewVoteID(),
		Voter:              caller,
		ProjectID:          projectID,
		Seq:                next.TotalVotes,
		Month:              month,
		FreeVotesThisMonth: next.FreeVotesThisMonth,
		Billable:           billable,
		CastAt:             now,
	}

	var charge *fee.Charge
	if billable {
		amount, err := e.fees.Fee(ctx)
		if err != nil {
			return nil, err
		}
		charge, err = e.fees.Charge(ctx, caller, projectID, amount, now)
		if err != nil {
			e.logger.Debug("fee charge failed",
				"voter", caller.String(),
				"project_id", projectID,
				"amount", e.unit.Format(amount),
				"error", err,
			)
			e.plugins.EmitFeeChargeFailed(ctx, charge, err)
			return nil, e.reject(ctx, caller, projectID, err)
		}
		v.Fee = amount
		e.plugins.EmitFeeCharged(ctx, charge)
	}

	if err := e.voters.Record(ctx, v); err != nil {
		if charge != nil {
			err = e.refund(ctx, charge, err)
		}
		return nil, e.reject(ctx, caller, projectID, err)
	}

	e.logger.Debug("vote cast",
		"voter", caller.String(),
		"project_id", projectID,
		"seq", v.Seq,
		"month", v.Month.String(),
		"billable", v.Billable,
	)
	e.plugins.EmitVoteCast(ctx, v)
	return v, nil
}

// refund returns a charge whose vote failed to commit and folds any
// refund failure into cause.
func (e *Engine) refund(ctx context.Context, c *fee.Charge, cause error) error {
	// The refund must go out even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)

	if err := e.fees.Refund(ctx, c); err != nil {
		e.logger.Error("fee refund failed",
			"voter", c.Voter.String(),
			"project_id", c.ProjectID,
			"amount", e.unit.Format(c.Amount),
			"error", err,
		)
		return errors.Join(cause, err)
	}
	e.plugins.EmitFeeRefunded(ctx, c)
	return cause
}

func (e *Engine) reject(ctx context.Context, caller types.Address, projectID uint64, err error) error {
	e.plugins.EmitVoteRejected(ctx, caller, projectID, err)
	return err
}

// HasVoted reports whether addr already voted for projectID.
func (e *Engine) HasVoted(ctx context.Context, addr types.Address, projectID uint64) (bool, error) {
	return e.voters.HasVoted(ctx, types.NormalizeAddress(string(addr)), projectID)
}

// VoterDetails returns addr's total votes and the free votes used in the
// current month. An address that never voted reports zeros.
func (e *Engine) VoterDetails(ctx context.Context, addr types.Address) (voter.Snapshot, error) {
	return e.voters.Query(ctx, types.NormalizeAddress(string(addr)), voter.MonthOf(e.now()))
}

// ListVotes returns addr's vote receipts, oldest first.
func (e *Engine) ListVotes(ctx context.Context, addr types.Address, opts voter.ListOpts) ([]*voter.Vote, error) {
	return e.voters.List(ctx, types.NormalizeAddress(string(addr)), opts)
}

// ──────────────────────────────────────────────────
// Fees
// ──────────────────────────────────────────────────

// TokenFeeAmount returns the fee charged for a billable vote.
func (e *Engine) TokenFeeAmount(ctx context.Context) (types.Amount, error) {
	return e.fees.Fee(ctx)
}

// CollectedFees returns the system account's token balance, which is
// what the next WithdrawFees would transfer.
func (e *Engine) CollectedFees(ctx context.Context) (types.Amount, error) {
	return e.fees.Collected(ctx)
}

// WithdrawFees transfers everything the system account holds to the owner.
// Only the owner may call it.
func (e *Engine) WithdrawFees(ctx context.Context) (*fee.Withdrawal, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	w, err := e.fees.Withdraw(ctx, caller, e.now())
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			e.plugins.EmitAccessDenied(ctx, caller, "withdraw_fees")
		}
		return w, err
	}
	if w.ID.IsNil() {
		e.logger.Debug("nothing to withdraw", "owner", w.Owner.String())
		return w, nil
	}

	e.logger.Info("fees withdrawn",
		"withdrawal_id", w.ID.String(),
		"owner", w.Owner.String(),
		"amount", e.unit.Format(w.Amount),
	)
	e.plugins.EmitFeesWithdrawn(ctx, w)
	return w, nil
}

// UpdateTokenFees replaces the fee for billable votes. Only the owner may
// call it; the new amount applies to the next billable vote.
func (e *Engine) UpdateTokenFees(ctx context.Context, amount types.Amount) (*fee.Change, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	c, err := e.fees.SetFee(ctx, caller, amount, e.now())
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			e.plugins.EmitAccessDenied(ctx, caller, "update_token_fees")
		}
		return nil, err
	}

	e.logger.Info("token fee updated",
		"change_id", c.ID.String(),
		"previous", e.unit.Format(c.Previous),
		"amount", e.unit.Format(c.Amount),
	)
	e.plugins.EmitFeeUpdated(ctx, c)
	return c, nil
}

// ListFeeChanges returns the fee history, oldest first.
func (e *Engine) ListFeeChanges(ctx context.Context, opts fee.ListOpts) ([]*fee.Change, error) {
	return e.fees.Changes(ctx, opts)
}

// ListWithdrawals returns withdrawal receipts, oldest first.
func (e *Engine) ListWithdrawals(ctx context.Context, opts fee.ListOpts) ([]*fee.Withdrawal, error) {
	return e.fees.Withdrawals(ctx, opts)
}
