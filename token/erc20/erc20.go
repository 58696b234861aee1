// Package erc20 implements token.Ledger against a deployed ERC-20 contract
// through go-ethereum's contract bindings.
//
// The Ledger signs as the system account: fees are pulled with
// transferFrom (voters approve the system account first) and withdrawals
// are paid with transfer. Pulls are checked against allowance and balance
// before a transaction is sent, so a declined fee costs no gas.
package erc20

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/xraph/ballot/token"
	"github.com/xraph/ballot/types"
)

// ErrInvalidAddress is returned for identities that are not hex accounts.
var ErrInvalidAddress = errors.New("erc20: not a hex account address")

// DefaultMineTimeout bounds the wait for a sent transaction's receipt.
const DefaultMineTimeout = 2 * time.Minute

// MetaData contains the subset of the ERC-20 ABI the ledger uses.
var MetaData = &bind.MetaData{
	ABI: `[
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`,
}

// Backend is what the ledger needs from a chain client. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Ledger is a token.Ledger backed by an ERC-20 contract.
type Ledger struct {
	address     common.Address
	contract    *bind.BoundContract
	backend     Backend
	auth        *bind.TransactOpts
	logger      *slog.Logger
	mineTimeout time.Duration
	closer      func()
}

var (
	_ token.Ledger = (*Ledger)(nil)
	_ io.Closer    = (*Ledger)(nil)
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMineTimeout sets how long a sent transaction is waited on.
func WithMineTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.mineTimeout = d
		}
	}
}

// New binds the token at address. auth signs transactions and its From
// field is the system account.
func New(address common.Address, backend Backend, auth *bind.TransactOpts, opts ...Option) (*Ledger, error) {
	if auth == nil {
		return nil, errors.New("erc20: transact options are required")
	}
	parsed, err := MetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("erc20: parse abi: %w", err)
	}
	l := &Ledger{
		address:     address,
		contract:    bind.NewBoundContract(address, *parsed, backend, backend, backend),
		backend:     backend,
		auth:        auth,
		logger:      slog.Default(),
		mineTimeout: DefaultMineTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// DialConfig describes how to reach the token.
type DialConfig struct {
	RPCURL       string
	TokenAddress string
	// PrivateKey is the hex-encoded secp256k1 key of the system account.
	PrivateKey string
	// ChainID is read from the node when zero.
	ChainID int64
}

// Dial connects to a node and binds the token with a keyed transactor.
func Dial(ctx context.Context, cfg DialConfig, opts ...Option) (*Ledger, error) {
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("%w: token %q", ErrInvalidAddress, cfg.TokenAddress)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("erc20: dial %s: %w", cfg.RPCURL, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("erc20: parse private key: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = client.ChainID(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("erc20: read chain id: %w", err)
		}
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("erc20: build transactor: %w", err)
	}
	l, err := New(common.HexToAddress(cfg.TokenAddress), client, auth, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	l.closer = client.Close
	return l, nil
}

// Close releases the node connection opened by Dial. Ledgers built with
// New leave their backend to the caller.
func (l *Ledger) Close() error {
	if l.closer != nil {
		l.closer()
	}
	return nil
}

// Address returns the token contract address.
func (l *Ledger) Address() common.Address { return l.address }

// Account implements token.Ledger.
func (l *Ledger) Account() types.Address {
	return types.NormalizeAddress(l.auth.From.Hex())
}

// Unit reads the token's symbol and decimals.
func (l *Ledger) Unit(ctx context.Context) (types.Unit, error) {
	var symbolOut, decimalsOut []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &symbolOut, "symbol"); err != nil {
		return types.Unit{}, fmt.Errorf("erc20: symbol: %w", err)
	}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &decimalsOut, "decimals"); err != nil {
		return types.Unit{}, fmt.Errorf("erc20: decimals: %w", err)
	}
	return types.Unit{
		Symbol:   *abi.ConvertType(symbolOut[0], new(string)).(*string),
		Decimals: *abi.ConvertType(decimalsOut[0], new(uint8)).(*uint8),
	}, nil
}

// BalanceOf implements token.Ledger.
func (l *Ledger) BalanceOf(ctx context.Context, account types.Address) (types.Amount, error) {
	addr, err := toAddress(account)
	if err != nil {
		return types.Amount{}, err
	}
	return l.callAmount(ctx, "balanceOf", addr)
}

// Allowance returns what spender may still draw from owner.
func (l *Ledger) Allowance(ctx context.Context, owner, spender types.Address) (types.Amount, error) {
	o, err := toAddress(owner)
	if err != nil {
		return types.Amount{}, err
	}
	s, err := toAddress(spender)
	if err != nil {
		return types.Amount{}, err
	}
	return l.callAmount(ctx, "allowance", o, s)
}

// TransferFrom implements token.Ledger.
func (l *Ledger) TransferFrom(ctx context.Context, from, to types.Address, amount types.Amount) (bool, error) {
	src, err := toAddress(from)
	if err != nil {
		return false, err
	}
	dst, err := toAddress(to)
	if err != nil {
		return false, err
	}

	allowed, err := l.Allowance(ctx, from, l.Account())
	if err != nil {
		return false, err
	}
	if allowed.LessThan(amount) {
		l.logger.Debug("erc20: transferFrom declined: allowance",
			"from", from, "allowance", allowed.String(), "amount", amount.String())
		return false, nil
	}
	balance, err := l.callAmount(ctx, "balanceOf", src)
	if err != nil {
		return false, err
	}
	if balance.LessThan(amount) {
		l.logger.Debug("erc20: transferFrom declined: balance",
			"from", from, "balance", balance.String(), "amount", amount.String())
		return false, nil
	}

	return l.send(ctx, "transferFrom", src, dst, amount.BigInt())
}

// Transfer implements token.Ledger.
func (l *Ledger) Transfer(ctx context.Context, to types.Address, amount types.Amount) (bool, error) {
	dst, err := toAddress(to)
	if err != nil {
		return false, err
	}
	return l.send(ctx, "transfer", dst, amount.BigInt())
}

func (l *Ledger) callAmount(ctx context.Context, method string, params ...interface{}) (types.Amount, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return types.Amount{}, fmt.Errorf("erc20: %s: %w", method, err)
	}
	if len(out) == 0 {
		return types.Amount{}, fmt.Errorf("erc20: %s: empty result", method)
	}
	return types.AmountFromBig(*abi.ConvertType(out[0], new(*big.Int)).(**big.Int))
}

// send submits a transaction and waits for it to be mined. A reverted
// transaction reports false; transport failures report an error.
// Once sent, the receipt is awaited through ctx cancellation, up to
// mineTimeout: a sent transfer lands whether or not the caller waits.
func (l *Ledger) send(ctx context.Context, method string, params ...interface{}) (bool, error) {
	opts := *l.auth
	opts.Context = ctx

	tx, err := l.contract.Transact(&opts, method, params...)
	if err != nil {
		if isRevert(err) {
			l.logger.Warn("erc20: transaction would revert", "method", method, "error", err)
			return false, nil
		}
		return false, fmt.Errorf("erc20: %s: %w", method, err)
	}

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.mineTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, l.backend, tx)
	if err != nil {
		l.logger.Error("erc20: transaction outcome unknown",
			"method", method,
			"tx", tx.Hash().Hex(),
			"error", err,
		)
		return false, fmt.Errorf("erc20: %s: wait mined %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		l.logger.Warn("erc20: transaction reverted", "method", method, "tx", tx.Hash().Hex())
		return false, nil
	}

	l.logger.Debug("erc20: transaction mined",
		"method", method,
		"tx", tx.Hash().Hex(),
		"block", receipt.BlockNumber,
		"gas_used", receipt.GasUsed,
	)
	return true, nil
}

func toAddress(a types.Address) (common.Address, error) {
	if !common.IsHexAddress(string(a)) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, a)
	}
	return common.HexToAddress(string(a)), nil
}

func isRevert(err error) bool {
	return strings.Contains(err.Error(), "execution reverted")
}
