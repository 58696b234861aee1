package project

import "context"

type Store interface {
	// Register assigns p.ID as the current project count and persists p.
	Register(ctx context.Context, p *Project) error
	Get(ctx context.Context, projectID uint64) (*Project, error)
	List(ctx context.Context, opts ListOpts) ([]*Project, error)
	Count(ctx context.Context) (uint64, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
