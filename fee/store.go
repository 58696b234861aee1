package fee

import "context"

type Store interface {
	GetSettings(ctx context.Context) (*Settings, error)
	// InitSettings stores s unless settings already exist.
	InitSettings(ctx context.Context, s *Settings) error
	// ApplyChange records c and sets the current fee to c.Amount atomically.
	ApplyChange(ctx context.Context, c *Change) error
	ListChanges(ctx context.Context, opts ListOpts) ([]*Change, error)

	RecordWithdrawal(ctx context.Context, w *Withdrawal) error
	ListWithdrawals(ctx context.Context, opts ListOpts) ([]*Withdrawal, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
