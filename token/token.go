// Package token defines the fee token collaborator.
//
// The engine never moves tokens itself. It asks a Ledger, bound to the
// system account, to pull fees from voters (which requires the voter to
// have approved the system account beforehand), to push tokens out of the
// system account, and to report balances.
package token

import (
	"context"

	"github.com/xraph/ballot/types"
)

// Ledger is the fee token as seen from the system account.
type Ledger interface {
	// Account is the system account: fees are pulled into it and
	// withdrawals are paid out of it.
	Account() types.Address

	// TransferFrom moves amount from `from` to `to`, spending the allowance
	// `from` granted to Account(). A false result with a nil error means
	// the token declined the transfer (allowance or balance too low).
	TransferFrom(ctx context.Context, from, to types.Address, amount types.Amount) (bool, error)

	// Transfer moves amount from Account() to `to`.
	Transfer(ctx context.Context, to types.Address, amount types.Amount) (bool, error)

	BalanceOf(ctx context.Context, account types.Address) (types.Amount, error)
}
