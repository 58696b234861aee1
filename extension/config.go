package extension

import (
	"github.com/xraph/ballot"
	"github.com/xraph/ballot/types"
)

// Config holds the ballot extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.ballot" or "ballot" keys).
type Config struct {
	// Owner is the identity allowed to withdraw fees and change the fee.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// SystemAccount receives collected fees when the extension builds its
	// own in-memory token. It is ignored when a token is supplied with
	// WithToken, whose account is used instead (default: "ballot").
	SystemAccount string `json:"system_account" mapstructure:"system_account" yaml:"system_account"`

	// InitialFee is the vote fee in major units, e.g. "5" (default: "5").
	// It only applies the first time the store is started.
	InitialFee string `json:"initial_fee" mapstructure:"initial_fee" yaml:"initial_fee"`

	// UnitSymbol and UnitDecimals describe the fee token (default: USDT/18).
	UnitSymbol   string `json:"unit_symbol" mapstructure:"unit_symbol" yaml:"unit_symbol"`
	UnitDecimals uint8  `json:"unit_decimals" mapstructure:"unit_decimals" yaml:"unit_decimals"`

	// ProjectCacheSize is the number of projects kept in the LRU cache
	// (default: 1024).
	ProjectCacheSize int `json:"project_cache_size" mapstructure:"project_cache_size" yaml:"project_cache_size"`

	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for ballot routes (default: "/ballot").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SystemAccount:    "ballot",
		InitialFee:       "5",
		UnitSymbol:       types.DefaultUnit.Symbol,
		UnitDecimals:     types.DefaultUnit.Decimals,
		ProjectCacheSize: ballot.DefaultProjectCacheSize,
		BasePath:         "/ballot",
	}
}
