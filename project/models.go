// Package project defines registered projects and their storage contract.
package project

import "github.com/xraph/ballot/types"

// Project is an append-only registration. IDs are dense and zero-based:
// the n-th registered project has ID n-1.
type Project struct {
	types.Entity
	ID         uint64        `json:"id"`
	Name       string        `json:"name"`
	Registrant types.Address `json:"registrant,omitempty"`
}
