package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/store/memory"
	tokenmem "github.com/xraph/ballot/token/memory"
	"github.com/xraph/ballot/types"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{Owner: "0x01", InitialFee: "1"})

	assert.Equal(t, "0x01", cfg.Owner)
	assert.Equal(t, "1", cfg.InitialFee)
	assert.Equal(t, "ballot", cfg.SystemAccount)
	assert.Equal(t, types.DefaultUnit.Symbol, cfg.UnitSymbol)
	assert.Equal(t, uint8(18), cfg.UnitDecimals)
	assert.Equal(t, ballot.DefaultProjectCacheSize, cfg.ProjectCacheSize)
	assert.Equal(t, "/ballot", cfg.BasePath)
}

func TestMergeConfigurationsPrefersFile(t *testing.T) {
	file := Config{Owner: "file-owner", BasePath: "/votes"}
	prog := Config{Owner: "prog-owner", InitialFee: "3", DisableMigrate: true}

	cfg := mergeConfigurations(file, prog)
	assert.Equal(t, "file-owner", cfg.Owner)
	assert.Equal(t, "/votes", cfg.BasePath)
	assert.Equal(t, "3", cfg.InitialFee, "programmatic fills gaps")
	assert.True(t, cfg.DisableMigrate)
}

func TestBuildEngineOpts(t *testing.T) {
	e := New(WithDisableMigrate(), WithProjectCacheSize(8))
	e.config = mergeWithDefaults(e.config)

	opts := e.buildEngineOpts(types.DefaultUnit)
	assert.Len(t, opts, 3)

	eng, err := ballot.New(memory.New(), tokenmem.New(types.DefaultUnit).Session("sys"), "owner", types.NewAmount(1), opts...)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultUnit, eng.Unit())
}
