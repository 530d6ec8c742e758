package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"TaxPool/internal/model"

	"github.com/holiman/uint256"
)

// stateFile is the on-disk form of model.LedgerState. Amounts are decimal
// strings because they do not fit in a JSON number.
type stateFile struct {
	Balances         map[model.Address]string `json:"balances"`
	TaxPool          string                   `json:"tax_pool"`
	LastDistribution time.Time                `json:"last_distribution"`
	Pending          *pendingFile             `json:"pending,omitempty"`
	Fulfilled        map[string]time.Time     `json:"fulfilled"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

type pendingFile struct {
	RequestID   string    `json:"request_id"`
	Snapshot    string    `json:"snapshot"`
	RequestedAt time.Time `json:"requested_at"`
}

// LoadState reads the ledger state from a JSON file. Returns nil, nil if the
// file doesn't exist.
func LoadState(filePath string) (*model.LedgerState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var raw stateFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	state := model.NewLedgerState(raw.LastDistribution)
	state.UpdatedAt = raw.UpdatedAt
	for addr, dec := range raw.Balances {
		v, err := uint256.FromDecimal(dec)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", addr, err)
		}
		state.Balances[addr] = v
	}
	if raw.TaxPool != "" {
		if state.TaxPool, err = uint256.FromDecimal(raw.TaxPool); err != nil {
			return nil, fmt.Errorf("tax pool: %w", err)
		}
	}
	if raw.Pending != nil {
		snap, err := uint256.FromDecimal(raw.Pending.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("pending snapshot: %w", err)
		}
		state.Pending = &model.PendingRequest{
			RequestID:   raw.Pending.RequestID,
			Snapshot:    snap,
			RequestedAt: raw.Pending.RequestedAt,
		}
	}
	for id, at := range raw.Fulfilled {
		state.Fulfilled[id] = at
	}
	return state, nil
}

// SaveState writes the ledger state to a JSON file.
func SaveState(filePath string, state *model.LedgerState) error {
	state.UpdatedAt = time.Now()
	raw := stateFile{
		Balances:         make(map[model.Address]string, len(state.Balances)),
		TaxPool:          model.Clone(state.TaxPool).Dec(),
		LastDistribution: state.LastDistribution,
		Fulfilled:        state.Fulfilled,
		UpdatedAt:        state.UpdatedAt,
	}
	for addr, v := range state.Balances {
		raw.Balances[addr] = v.Dec()
	}
	if p := state.Pending; p != nil {
		raw.Pending = &pendingFile{
			RequestID:   p.RequestID,
			Snapshot:    model.Clone(p.Snapshot).Dec(),
			RequestedAt: p.RequestedAt,
		}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}
