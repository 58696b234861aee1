package ballot_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/store/memory"
	tokenmem "github.com/xraph/ballot/token/memory"
	"github.com/xraph/ballot/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation behave as described.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		tok := tokenmem.New(types.DefaultUnit)
		engine, err := ballot.New(memory.New(), tok.Session(system), owner, ballot.DefaultTokenFee,
			ballot.WithLogger(slog.Default()),
		)
		if err != nil {
			t.Fatal(err)
		}

		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		p, err := engine.RegisterProject(ctx, "Community Garden")
		if err != nil {
			t.Fatal(err)
		}
		if p.ID != 0 {
			t.Errorf("first project id = %d, want 0", p.ID)
		}

		fee, err := engine.TokenFeeAmount(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got := engine.Unit().Format(fee); got != "5 USDT" {
			t.Errorf("fee = %q, want 5 USDT", got)
		}
	})

	t.Run("CallerExample", func(t *testing.T) {
		engine, err := ballot.New(memory.New(), tokenmem.New(types.DefaultUnit).Session(system), owner, ballot.DefaultTokenFee)
		if err != nil {
			t.Fatal(err)
		}
		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		if _, err := engine.CastVote(ctx, 0); !errors.Is(err, ballot.ErrMissingCaller) {
			t.Errorf("anonymous vote: got %v", err)
		}

		ctx = ballot.WithCaller(ctx, alice)
		if _, err := engine.CastVote(ctx, 0); !errors.Is(err, ballot.ErrInvalidProjectID) {
			t.Errorf("vote on missing project: got %v", err)
		}
	})

	t.Run("FeeExample", func(t *testing.T) {
		tok := tokenmem.New(types.DefaultUnit)
		engine, err := ballot.New(memory.New(), tok.Session(system), owner, ballot.DefaultTokenFee)
		if err != nil {
			t.Fatal(err)
		}
		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		// A plain transfer into the system account is swept too.
		tok.Mint(bob, types.MustParseUnits("1.5", 18))
		if !tok.Send(bob, system, types.MustParseUnits("1.5", 18)) {
			t.Fatal("send failed")
		}

		w, err := engine.WithdrawFees(ballot.WithCaller(ctx, owner))
		if err != nil {
			t.Fatal(err)
		}
		if got := types.DefaultUnit.Format(w.Amount); got != "1.5 USDT" {
			t.Errorf("withdrawn = %q", got)
		}
	})

	t.Run("AmountExamples", func(t *testing.T) {
		a := ballot.MustParseUnits("2.5", 18)
		if a.String() != "2500000000000000000" {
			t.Errorf("base units = %s", a)
		}
		if ballot.DefaultUnit.Format(a) != "2.5 USDT" {
			t.Errorf("format = %s", ballot.DefaultUnit.Format(a))
		}
	})
}
