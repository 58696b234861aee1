package ballot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/id"
	"github.com/xraph/ballot/token"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

// FeeAccounting decides which votes are billable, pulls fees into the
// system account and pays the owner on withdrawal.
//
// Fees are escrowed: a charge moves tokens from the voter to the system
// account (the token ledger's own account), and a withdrawal sweeps the
// system account's entire balance to the owner. Tokens sent to the system
// account by any other route are swept the same way.
type FeeAccounting struct {
	store  fee.Store
	ledger token.Ledger
	owner  types.Address
	logger *slog.Logger
}

// NewFeeAccounting creates the fee component. owner is fixed for the
// lifetime of the component.
func NewFeeAccounting(s fee.Store, ledger token.Ledger, owner types.Address, logger *slog.Logger) *FeeAccounting {
	return &FeeAccounting{
		store:  s,
		ledger: ledger,
		owner:  types.NormalizeAddress(string(owner)),
		logger: logger,
	}
}

// Owner returns the owner identity.
func (a *FeeAccounting) Owner() types.Address { return a.owner }

// SystemAccount returns the account fees are collected into.
func (a *FeeAccounting) SystemAccount() types.Address { return a.ledger.Account() }

// Init stores the initial fee unless one is already configured.
func (a *FeeAccounting) Init(ctx context.Context, initial types.Amount, at time.Time) error {
	s := &fee.Settings{
		Entity:         types.NewEntityAt(at),
		TokenFeeAmount: initial,
		UpdatedBy:      a.owner,
	}
	if err := a.store.InitSettings(ctx, s); err != nil {
		return fmt.Errorf("ballot: init fee settings: %w", err)
	}
	return nil
}

// Classify applies the monthly reset rule and reports whether v's next
// vote in month now is free.
func (a *FeeAccounting) Classify(v voter.Voter, now voter.Month) fee.Classification {
	return fee.Classify(v, now)
}

// Fee returns the current fee for a billable vote.
func (a *FeeAccounting) Fee(ctx context.Context) (types.Amount, error) {
	s, err := a.store.GetSettings(ctx)
	if err != nil {
		return types.Amount{}, fmt.Errorf("ballot: get fee settings: %w", err)
	}
	return s.TokenFeeAmount, nil
}

// Charge pulls amount from the voter into the system account. A declined
// pull and a failing token call both surface as ErrFeeTransferFailed.
func (a *FeeAccounting) Charge(ctx context.Context, from types.Address, projectID uint64, amount types.Amount, at time.Time) (*fee.Charge, error) {
	c := &fee.Charge{
		Voter:     from,
		ProjectID: projectID,
		Amount:    amount,
		ChargedAt: at,
	}
	ok, err := a.ledger.TransferFrom(ctx, from, a.ledger.Account(), amount)
	if err != nil {
		return c, fmt.Errorf("%w: %w", ErrFeeTransferFailed, err)
	}
	if !ok {
		return c, ErrFeeTransferFailed
	}
	return c, nil
}

// Refund returns a charge to its voter.
func (a *FeeAccounting) Refund(ctx context.Context, c *fee.Charge) error {
	ok, err := a.ledger.Transfer(ctx, c.Voter, c.Amount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRefundFailed, err)
	}
	if !ok {
		return ErrRefundFailed
	}
	return nil
}

// Collected returns the balance a withdrawal would sweep.
func (a *FeeAccounting) Collected(ctx context.Context) (types.Amount, error) {
	bal, err := a.ledger.BalanceOf(ctx, a.ledger.Account())
	if err != nil {
		return types.Amount{}, fmt.Errorf("ballot: system balance: %w", err)
	}
	return bal, nil
}

// Withdraw transfers the system account's whole balance to the owner.
// With nothing collected it transfers and records nothing and returns a
// zero withdrawal.
func (a *FeeAccounting) Withdraw(ctx context.Context, caller types.Address, at time.Time) (*fee.Withdrawal, error) {
	if err := a.authorize(caller); err != nil {
		return nil, err
	}

	bal, err := a.Collected(ctx)
	if err != nil {
		return nil, err
	}
	w := &fee.Withdrawal{Owner: a.owner, Amount: bal, WithdrawnAt: at}
	if bal.IsZero() {
		return w, nil
	}

	ok, err := a.ledger.Transfer(ctx, a.owner, bal)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWithdrawFailed, err)
	}
	if !ok {
		return nil, ErrWithdrawFailed
	}

	w.ID = id.NewWithdrawalID()
	if err := a.store.RecordWithdrawal(ctx, w); err != nil {
		// The tokens have moved; only the receipt is missing.
		a.logger.Error("withdrawal receipt not stored",
			"withdrawal_id", w.ID.String(),
			"amount", bal.String(),
			"error", err,
		)
		return w, fmt.Errorf("ballot: record withdrawal %s: %w", w.ID, err)
	}
	return w, nil
}

// SetFee replaces the fee charged for billable votes.
func (a *FeeAccounting) SetFee(ctx context.Context, caller types.Address, amount types.Amount, at time.Time) (*fee.Change, error) {
	if err := a.authorize(caller); err != nil {
		return nil, err
	}

	previous, err := a.Fee(ctx)
	if err != nil && !errors.Is(err, ErrSettingsNotFound) {
		return nil, err
	}

	c := &fee.Change{
		ID:        id.NewFeeChangeID(),
		Previous:  previous,
		Amount:    amount,
		UpdatedBy: caller,
		ChangedAt: at,
	}
	if err := a.store.ApplyChange(ctx, c); err != nil {
		return nil, fmt.Errorf("ballot: apply fee change: %w", err)
	}
	return c, nil
}

// Changes returns the fee history, oldest first.
func (a *FeeAccounting) Changes(ctx context.Context, opts fee.ListOpts) ([]*fee.Change, error) {
	return a.store.ListChanges(ctx, opts)
}

// Withdrawals returns withdrawal receipts, oldest first.
func (a *FeeAccounting) Withdrawals(ctx context.Context, opts fee.ListOpts) ([]*fee.Withdrawal, error) {
	return a.store.ListWithdrawals(ctx, opts)
}

func (a *FeeAccounting) authorize(caller types.Address) error {
	if caller.IsZero() {
		return ErrMissingCaller
	}
	if !caller.Equal(a.owner) {
		return ErrUnauthorized
	}
	return nil
}
