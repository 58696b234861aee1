package ballot

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xraph/ballot/project"
	"github.com/xraph/ballot/types"
)

// DefaultProjectCacheSize is how many projects the registry keeps in memory.
const DefaultProjectCacheSize = 1024

// ProjectRegistry owns the append-only set of projects. Projects never
// change after registration, so lookups are served from an LRU cache.
type ProjectRegistry struct {
	store project.Store
	cache *lru.Cache[uint64, *project.Project]
}

// NewProjectRegistry wraps s with a cache of size entries. A size of zero
// or less disables caching.
func NewProjectRegistry(s project.Store, size int) (*ProjectRegistry, error) {
	r := &ProjectRegistry{store: s}
	if size > 0 {
		cache, err := lru.New[uint64, *project.Project](size)
		if err != nil {
			return nil, fmt.Errorf("ballot: project cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Register stores a new project named name. Its ID is the number of
// projects registered before it.
func (r *ProjectRegistry) Register(ctx context.Context, name string, registrant types.Address, entity types.Entity) (*project.Project, error) {
	p := &project.Project{
		Entity:     entity,
		Name:       name,
		Registrant: registrant,
	}
	if err := r.store.Register(ctx, p); err != nil {
		return nil, fmt.Errorf("ballot: register project: %w", err)
	}
	r.remember(p)
	return p, nil
}

// Get returns the project with the given id or ErrInvalidProjectID.
func (r *ProjectRegistry) Get(ctx context.Context, projectID uint64) (*project.Project, error) {
	if r.cache != nil {
		if p, ok := r.cache.Get(projectID); ok {
			return p, nil
		}
	}

	p, err := r.store.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrInvalidProjectID) || errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrInvalidProjectID, projectID)
		}
		return nil, fmt.Errorf("ballot: get project %d: %w", projectID, err)
	}
	r.remember(p)
	return p, nil
}

// Count returns how many projects exist.
func (r *ProjectRegistry) Count(ctx context.Context) (uint64, error) {
	return r.store.Count(ctx)
}

// List returns projects in id order.
func (r *ProjectRegistry) List(ctx context.Context, opts project.ListOpts) ([]*project.Project, error) {
	return r.store.List(ctx, opts)
}

func (r *ProjectRegistry) remember(p *project.Project) {
	if r.cache != nil {
		r.cache.Add(p.ID, p)
	}
}
