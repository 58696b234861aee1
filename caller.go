package ballot

import (
	"context"

	"github.com/xraph/ballot/types"
)

type callerKey struct{}

// WithCaller returns a context carrying the identity of whoever invokes the
// engine. The surrounding environment (an authenticated session, a signed
// request) decides what that identity is; the engine only compares it.
func WithCaller(ctx context.Context, addr types.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, types.NormalizeAddress(string(addr)))
}

// CallerFrom returns the caller identity stored by WithCaller.
func CallerFrom(ctx context.Context) (types.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(types.Address)
	if !ok || addr.IsZero() {
		return "", false
	}
	return addr, true
}

func requireCaller(ctx context.Context) (types.Address, error) {
	addr, ok := CallerFrom(ctx)
	if !ok {
		return "", ErrMissingCaller
	}
	return addr, nil
}
