// Package memory provides an in-process fungible token with ERC-20
// semantics: balances, allowances, approve and transferFrom guarded by
// allowance and balance. It is the token used by tests and by the daemon's
// "memory" token backend.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/ballot/token"
	"github.com/xraph/ballot/types"
)

// Transfer is one movement recorded in the token's journal.
type Transfer struct {
	From    types.Address
	To      types.Address
	Spender types.Address // set for transferFrom
	Amount  types.Amount
	At      time.Time
}

// Token holds every balance and allowance of a single token.
type Token struct {
	mu         sync.Mutex
	unit       types.Unit
	supply     types.Amount
	balances   map[types.Address]types.Amount
	allowances map[types.Address]map[types.Address]types.Amount
	journal    []Transfer
}

// New creates an empty token.
func New(unit types.Unit) *Token {
	return &Token{
		unit:       unit,
		balances:   make(map[types.Address]types.Amount),
		allowances: make(map[types.Address]map[types.Address]types.Amount),
	}
}

// Unit returns the token's presentation unit.
func (t *Token) Unit() types.Unit { return t.unit }

// Mint creates amount new tokens owned by to.
func (t *Token) Mint(to types.Address, amount types.Amount) {
	to = types.NormalizeAddress(string(to))

	t.mu.Lock()
	defer t.mu.Unlock()

	t.supply = t.supply.Add(amount)
	t.balances[to] = t.balances[to].Add(amount)
	t.journal = append(t.journal, Transfer{To: to, Amount: amount, At: time.Now().UTC()})
}

// Approve sets the allowance spender may draw from owner, replacing any
// previous allowance.
func (t *Token) Approve(owner, spender types.Address, amount types.Amount) {
	owner = types.NormalizeAddress(string(owner))
	spender = types.NormalizeAddress(string(spender))

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[types.Address]types.Amount)
	}
	t.allowances[owner][spender] = amount
}

// Allowance returns what spender may still draw from owner.
func (t *Token) Allowance(owner, spender types.Address) types.Amount {
	owner = types.NormalizeAddress(string(owner))
	spender = types.NormalizeAddress(string(spender))

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowances[owner][spender]
}

// Balance returns the balance of account.
func (t *Token) Balance(account types.Address) types.Amount {
	account = types.NormalizeAddress(string(account))

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[account]
}

// TotalSupply returns the sum of all balances.
func (t *Token) TotalSupply() types.Amount {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supply
}

// Send moves tokens between two accounts as if from signed the transfer.
// It reports false when from's balance is too low.
func (t *Token) Send(from, to types.Address, amount types.Amount) bool {
	from = types.NormalizeAddress(string(from))
	to = types.NormalizeAddress(string(to))

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, "", amount)
}

// Journal returns a copy of all recorded movements, mints included.
func (t *Token) Journal() []Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Transfer, len(t.journal))
	copy(out, t.journal)
	return out
}

// Session returns a token.Ledger acting as account.
func (t *Token) Session(account types.Address) *Session {
	return &Session{token: t, account: types.NormalizeAddress(string(account))}
}

// move must be called with mu held.
func (t *Token) move(from, to, spender types.Address, amount types.Amount) bool {
	if to.IsZero() || t.balances[from].LessThan(amount) {
		return false
	}
	t.balances[from] = t.balances[from].Sub(amount)
	t.balances[to] = t.balances[to].Add(amount)
	t.journal = append(t.journal, Transfer{
		From:    from,
		To:      to,
		Spender: spender,
		Amount:  amount,
		At:      time.Now().UTC(),
	})
	return true
}

// Session is a Token bound to one account. It implements token.Ledger.
type Session struct {
	token   *Token
	account types.Address
}

var _ token.Ledger = (*Session)(nil)

// Account implements token.Ledger.
func (s *Session) Account() types.Address { return s.account }

// TransferFrom implements token.Ledger.
func (s *Session) TransferFrom(ctx context.Context, from, to types.Address, amount types.Amount) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	from = types.NormalizeAddress(string(from))
	to = types.NormalizeAddress(string(to))

	t := s.token
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowances[from][s.account]
	if allowed.LessThan(amount) {
		return false, nil
	}
	if !t.move(from, to, s.account, amount) {
		return false, nil
	}
	if t.allowances[from] == nil {
		t.allowances[from] = make(map[types.Address]types.Amount)
	}
	t.allowances[from][s.account] = allowed.Sub(amount)
	return true, nil
}

// Transfer implements token.Ledger.
func (s *Session) Transfer(ctx context.Context, to types.Address, amount types.Amount) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	to = types.NormalizeAddress(string(to))

	t := s.token
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(s.account, to, "", amount), nil
}

// BalanceOf implements token.Ledger.
func (s *Session) BalanceOf(ctx context.Context, account types.Address) (types.Amount, error) {
	if err := ctx.Err(); err != nil {
		return types.Amount{}, err
	}
	return s.token.Balance(account), nil
}
