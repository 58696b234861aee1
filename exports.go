package ballot

import "github.com/xraph/ballot/types"

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Address is re-exported from types package.
type Address = types.Address

// Unit is re-exported from types package.
type Unit = types.Unit

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export amount constructors
var (
	NewAmount      = types.NewAmount
	ParseAmount    = types.ParseAmount
	ParseUnits     = types.ParseUnits
	MustParseUnits = types.MustParseUnits
	DefaultUnit    = types.DefaultUnit
)

// NormalizeAddress is re-exported from types package.
var NormalizeAddress = types.NormalizeAddress
