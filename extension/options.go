package extension

import (
	"github.com/xraph/ballot"
	"github.com/xraph/ballot/plugin"
	"github.com/xraph/ballot/store"
	"github.com/xraph/ballot/token"
)

// Option configures the ballot Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ballot engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithToken sets the token ledger fees are charged through. Its account
// becomes the system account.
func WithToken(l token.Ledger) Option {
	return func(e *Extension) {
		e.token = l
	}
}

// WithEngineOption passes a ballot.Option through to the underlying engine.
func WithEngineOption(opt ballot.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a ballot plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, ballot.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithOwner sets the identity allowed to administer fees.
func WithOwner(owner string) Option {
	return func(e *Extension) { e.config.Owner = owner }
}

// WithInitialFee sets the first fee, in major units.
func WithInitialFee(amount string) Option {
	return func(e *Extension) { e.config.InitialFee = amount }
}

// WithProjectCacheSize sets the project LRU size.
func WithProjectCacheSize(n int) Option {
	return func(e *Extension) { e.config.ProjectCacheSize = n }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for ballot routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
