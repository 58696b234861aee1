// Package extension provides the Forge extension adapter for ballot.
//
// It implements the forge.Extension interface to integrate the voting
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.ballot" or "ballot" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/api"
	"github.com/xraph/ballot/store"
	"github.com/xraph/ballot/store/memory"
	"github.com/xraph/ballot/token"
	tokenmem "github.com/xraph/ballot/token/memory"
	"github.com/xraph/ballot/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "ballot"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Project voting with monthly free votes and token fees"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the ballot engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *ballot.Engine
	server     *api.Server
	store      store.Store
	token      token.Ledger
	engineOpts []ballot.Option
}

// New creates a new ballot Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *ballot.Engine { return e.engine }

// Server returns the HTTP API, or nil when routes are disabled.
func (e *Extension) Server() *api.Server { return e.server }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.buildEngine(); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*ballot.Engine, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.server == nil {
		return nil
	}
	return vessel.Provide(fapp.Container(), func() (*api.Server, error) {
		return e.server, nil
	})
}

// buildEngine constructs the engine, and the API unless routes are
// disabled, from the resolved config.
func (e *Extension) buildEngine() error {
	unit := types.Unit{Symbol: e.config.UnitSymbol, Decimals: e.config.UnitDecimals}
	initialFee, err := unit.Parse(e.config.InitialFee)
	if err != nil {
		return fmt.Errorf("ballot: initial_fee: %w", err)
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}
	if e.token == nil {
		e.Logger().Warn("ballot: no token configured, using an in-memory token",
			forge.F("system_account", e.config.SystemAccount),
		)
		e.token = tokenmem.New(unit).Session(types.Address(e.config.SystemAccount))
	}

	eng, err := ballot.New(e.store, e.token, types.Address(e.config.Owner), initialFee, e.buildEngineOpts(unit)...)
	if err != nil {
		return err
	}
	e.engine = eng

	if !e.config.DisableRoutes {
		e.server = api.NewServer(eng, api.WithBasePath(e.config.BasePath))
	}
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("ballot: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("ballot: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs ballot.Option values from the resolved config.
func (e *Extension) buildEngineOpts(unit types.Unit) []ballot.Option {
	opts := make([]ballot.Option, 0, len(e.engineOpts)+3)

	opts = append(opts,
		ballot.WithUnit(unit),
		ballot.WithProjectCacheSize(e.config.ProjectCacheSize),
	)
	if e.config.DisableMigrate {
		opts = append(opts, ballot.WithoutMigrate())
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("ballot: configuration is required but not found in config files; " +
				"ensure 'extensions.ballot' or 'ballot' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	if e.config.Owner == "" {
		return errors.New("ballot: owner is required")
	}

	e.Logger().Debug("ballot: configuration loaded",
		forge.F("owner", e.config.Owner),
		forge.F("initial_fee", e.config.InitialFee),
		forge.F("unit", e.config.UnitSymbol),
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.ballot", "ballot"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("ballot: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("ballot: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.SystemAccount == "" {
		cfg.SystemAccount = defaults.SystemAccount
	}
	if cfg.InitialFee == "" {
		cfg.InitialFee = defaults.InitialFee
	}
	if cfg.UnitSymbol == "" {
		cfg.UnitSymbol = defaults.UnitSymbol
	}
	if cfg.UnitDecimals == 0 {
		cfg.UnitDecimals = defaults.UnitDecimals
	}
	if cfg.ProjectCacheSize == 0 {
		cfg.ProjectCacheSize = defaults.ProjectCacheSize
	}
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&yamlConfig.Owner, programmaticConfig.Owner)
	fill(&yamlConfig.SystemAccount, programmaticConfig.SystemAccount)
	fill(&yamlConfig.InitialFee, programmaticConfig.InitialFee)
	fill(&yamlConfig.UnitSymbol, programmaticConfig.UnitSymbol)
	fill(&yamlConfig.BasePath, programmaticConfig.BasePath)

	if yamlConfig.UnitDecimals == 0 {
		yamlConfig.UnitDecimals = programmaticConfig.UnitDecimals
	}
	if yamlConfig.ProjectCacheSize == 0 {
		yamlConfig.ProjectCacheSize = programmaticConfig.ProjectCacheSize
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
