package model

import (
	"time"

	"github.com/holiman/uint256"
)

// Address identifies a participant, a contract or a service account.
type Address string

// PendingRequest is the randomness request a distribution is waiting on.
type PendingRequest struct {
	RequestID   string
	Snapshot    *uint256.Int
	RequestedAt time.Time
}

// LedgerState is the persisted state of the ledger.
type LedgerState struct {
	Balances         map[Address]*uint256.Int
	TaxPool          *uint256.Int
	LastDistribution time.Time
	Pending          *PendingRequest
	Fulfilled        map[string]time.Time
	UpdatedAt        time.Time
}

// NewLedgerState returns a zeroed state whose schedule starts at createdAt.
func NewLedgerState(createdAt time.Time) *LedgerState {
	return &LedgerState{
		Balances:         make(map[Address]*uint256.Int),
		TaxPool:          new(uint256.Int),
		LastDistribution: createdAt,
		Fulfilled:        make(map[string]time.Time),
	}
}
