package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/project"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit              []OnInit
	onShutdown          []OnShutdown
	onProjectRegistered []OnProjectRegistered
	onVoteCast          []OnVoteCast
	onVoteRejected      []OnVoteRejected
	onFeeCharged        []OnFeeCharged
	onFeeChargeFailed   []OnFeeChargeFailed
	onFeeRefunded       []OnFeeRefunded
	onFeesWithdrawn     []OnFeesWithdrawn
	onFeeUpdated        []OnFeeUpdated
	onAccessDenied      []OnAccessDenied
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets how long a single hook may run.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnProjectRegistered); ok {
		r.onProjectRegistered = append(r.onProjectRegistered, v)
	}
	if v, ok := p.(OnVoteCast); ok {
		r.onVoteCast = append(r.onVoteCast, v)
	}
	if v, ok := p.(OnVoteRejected); ok {
		r.onVoteRejected = append(r.onVoteRejected, v)
	}
	if v, ok := p.(OnFeeCharged); ok {
		r.onFeeCharged = append(r.onFeeCharged, v)
	}
	if v, ok := p.(OnFeeChargeFailed); ok {
		r.onFeeChargeFailed = append(r.onFeeChargeFailed, v)
	}
	if v, ok := p.(OnFeeRefunded); ok {
		r.onFeeRefunded = append(r.onFeeRefunded, v)
	}
	if v, ok := p.(OnFeesWithdrawn); ok {
		r.onFeesWithdrawn = append(r.onFeesWithdrawn, v)
	}
	if v, ok := p.(OnFeeUpdated); ok {
		r.onFeeUpdated = append(r.onFeeUpdated, v)
	}
	if v, ok := p.(OnAccessDenied); ok {
		r.onAccessDenied = append(r.onAccessDenied, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", Hooks(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnProjectRegistered", reflect.TypeOf((*OnProjectRegistered)(nil)).Elem()},
	{"OnVoteCast", reflect.TypeOf((*OnVoteCast)(nil)).Elem()},
	{"OnVoteRejected", reflect.TypeOf((*OnVoteRejected)(nil)).Elem()},
	{"OnFeeCharged", reflect.TypeOf((*OnFeeCharged)(nil)).Elem()},
	{"OnFeeChargeFailed", reflect.TypeOf((*OnFeeChargeFailed)(nil)).Elem()},
	{"OnFeeRefunded", reflect.TypeOf((*OnFeeRefunded)(nil)).Elem()},
	{"OnFeesWithdrawn", reflect.TypeOf((*OnFeesWithdrawn)(nil)).Elem()},
	{"OnFeeUpdated", reflect.TypeOf((*OnFeeUpdated)(nil)).Elem()},
	{"OnAccessDenied", reflect.TypeOf((*OnAccessDenied)(nil)).Elem()},
}

// Hooks returns the names of the hook interfaces p implements.
func Hooks(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	dispatch(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	dispatch(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitProjectRegistered emits a project registered event.
func (r *Registry) EmitProjectRegistered(ctx context.Context, proj *project.Project) {
	r.mu.RLock()
	plugins := r.onProjectRegistered
	r.mu.RUnlock()

	dispatch(ctx, r, "OnProjectRegistered", plugins, func(p OnProjectRegistered) error {
		return p.OnProjectRegistered(ctx, proj)
	})
}

// EmitVoteCast emits a vote cast event.
func (r *Registry) EmitVoteCast(ctx context.Context, v *voter.Vote) {
	r.mu.RLock()
	plugins := r.onVoteCast
	r.mu.RUnlock()

	dispatch(ctx, r, "OnVoteCast", plugins, func(p OnVoteCast) error {
		return p.OnVoteCast(ctx, v)
	})
}

// EmitVoteRejected emits a vote rejected event.
func (r *Registry) EmitVoteRejected(ctx context.Context, addr types.Address, projectID uint64, reason error) {
	r.mu.RLock()
	plugins := r.onVoteRejected
	r.mu.RUnlock()

	dispatch(ctx, r, "OnVoteRejected", plugins, func(p OnVoteRejected) error {
		return p.OnVoteRejected(ctx, addr, projectID, reason)
	})
}

// EmitFeeCharged emits a fee charged event.
func (r *Registry) EmitFeeCharged(ctx context.Context, c *fee.Charge) {
	r.mu.RLock()
	plugins := r.onFeeCharged
	r.mu.RUnlock()

	dispatch(ctx, r, "OnFeeCharged", plugins, func(p OnFeeCharged) error {
		return p.OnFeeCharged(ctx, c)
	})
}

// EmitFeeChargeFailed emits a fee charge failed event.
func (r *Registry) EmitFeeChargeFailed(ctx context.Context, c *fee.Charge, cause error) {
	r.mu.RLock()
	plugins := r.onFeeChargeFailed
	r.mu.RUnlock()

	dispatch(ctx, r, "OnFeeChargeFailed", plugins, func(p OnFeeChargeFailed) error {
		return p.OnFeeChargeFailed(ctx, c, cause)
	})
}

// EmitFeeRefunded emits a fee refunded event.
func (r *Registry) EmitFeeRefunded(ctx context.Context, c *fee.Charge) {
	r.mu.RLock()
	plugins := r.onFeeRefunded
	r.mu.RUnlock()

	dispatch(ctx, r, "OnFeeRefunded", plugins, func(p OnFeeRefunded) error {
		return p.OnFeeRefunded(ctx, c)
	})
}

// EmitFeesWithdrawn emits a fees withdrawn event.
func (r *Registry) EmitFeesWithdrawn(ctx context.Context, w *fee.Withdrawal) {
	r.mu.RLock()
	plugins := r.onFeesWithdrawn
	r.mu.RUnlock()

	dispatch(ctx, r, "OnFeesWithdrawn", plugins, func(p OnFeesWithdrawn) error {
		return p.OnFeesWithdrawn(ctx, w)
	})
}

// EmitFeeUpdated emits a fee updated event.
func (r *Registry) EmitFeeUpdated(ctx context.Context, c *fee.Change) {
	r.mu.RLock()
	plugins := r.onFeeUpdated
	r.mu.RUnlock()

	dispatch(ctx, r, "OnFeeUpdated", plugins, func(p OnFeeUpdated) error {
		return p.OnFeeUpdated(ctx, c)
	})
}

// EmitAccessDenied emits an access denied event.
func (r *Registry) EmitAccessDenied(ctx context.Context, caller types.Address, operation string) {
	r.mu.RLock()
	plugins := r.onAccessDenied
	r.mu.RUnlock()

	dispatch(ctx, r, "OnAccessDenied", plugins, func(p OnAccessDenied) error {
		return p.OnAccessDenied(ctx, caller, operation)
	})
}

func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, call func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the voting pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
