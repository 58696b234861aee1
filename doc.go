// Package ballot provides a project voting engine with a monthly free-vote
// quota and token fees for Go applications.
//
// Anyone may register a project. Token holders vote for projects, at most
// once per project. Each voter gets three free votes per calendar month
// (UTC); further votes in the same month cost a fee paid in an external
// fungible token. Fees collect in the system account until the owner
// withdraws them. Only the owner may withdraw or change the fee.
//
// ballot is a library, not a service. It provides:
//
//   - Sequential, zero-based project ids with a cached registry
//   - Per-voter serialization, in process or across processes via Redis
//   - All-or-nothing votes: a declined fee records nothing, a failed
//     commit refunds the fee
//   - Pluggable token backends (in-memory, ERC-20 over JSON-RPC)
//   - Memory, SQLite, PostgreSQL and MongoDB stores
//   - Plugin hooks for audit trails and metrics
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/ballot"
//	    "github.com/xraph/ballot/store/memory"
//	    tokenmem "github.com/xraph/ballot/token/memory"
//	)
//
//	tok := tokenmem.New(types.DefaultUnit)
//	engine, err := ballot.New(memory.New(), tok.Session("0xsystem..."), owner, ballot.DefaultTokenFee)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Callers
//
// The engine does not authenticate. The surrounding environment attaches
// the caller's identity to the context and the engine compares it:
//
//	ctx = ballot.WithCaller(ctx, voterAddress)
//	vote, err := engine.CastVote(ctx, projectID)
//	switch {
//	case errors.Is(err, ballot.ErrInvalidProjectID):
//	case errors.Is(err, ballot.ErrAlreadyVoted):
//	case errors.Is(err, ballot.ErrFeeTransferFailed):
//	    // approve the system account for the fee and retry
//	}
//
// # Fees
//
// Billable votes pull the fee from the voter with transferFrom, so voters
// approve the system account beforehand. WithdrawFees moves the system
// account's whole token balance to the owner, including tokens that
// reached it by a plain transfer.
//
// # TypeID
//
// Vote receipts, withdrawals and fee changes carry TypeIDs ("vote_...",
// "wdr_...", "fee_..."). Project ids are plain integers.
package ballot
