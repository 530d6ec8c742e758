// Package bank holds native value balances for one denomination (the chain
// currency, or the oracle fee token) and moves value between accounts.
package bank

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"TaxPool/internal/model"

	"github.com/holiman/uint256"
)

// Leg is a single movement of value inside an atomic batch.
type Leg struct {
	From   model.Address
	To     model.Address
	Amount *uint256.Int
}

// Bank is an account table for a single denomination. A bank opened with a
// state file rewrites it after every change.
type Bank struct {
	mu        sync.Mutex
	denom     string
	path      string
	balances  map[model.Address]*uint256.Int
	rejecting map[model.Address]bool
}

// stateFile is the on-disk form of a bank. Amounts are decimal strings.
type stateFile struct {
	Denom     string                   `json:"denom"`
	Balances  map[model.Address]string `json:"balances"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// New creates an empty bank for denom.
func New(denom string) *Bank {
	return &Bank{
		denom:     denom,
		balances:  make(map[model.Address]*uint256.Int),
		rejecting: make(map[model.Address]bool),
	}
}

// Open creates a bank backed by the JSON file at path, loading balances
// when the file exists. restored reports whether it did.
func Open(denom, path string) (b *Bank, restored bool, err error) {
	b = New(denom)
	b.path = path
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, false, nil
		}
		return nil, false, err
	}
	var raw stateFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", path, err)
	}
	if raw.Denom != "" && raw.Denom != denom {
		return nil, false, fmt.Errorf("%s holds %s balances, want %s", path, raw.Denom, denom)
	}
	for addr, dec := range raw.Balances {
		v, err := uint256.FromDecimal(dec)
		if err != nil {
			return nil, false, fmt.Errorf("balance of %s: %w", addr, err)
		}
		if !v.IsZero() {
			b.balances[addr] = v
		}
	}
	return b, true, nil
}

// Denom returns the denomination name.
func (b *Bank) Denom() string { return b.denom }

// Mint credits new value to addr. Used for genesis funding only.
func (b *Bank) Mint(addr model.Address, amount *uint256.Int) error {
	if model.Zero(amount) {
		return fmt.Errorf("mint %s: %w", b.denom, model.ErrInvalidAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = new(uint256.Int).Add(b.balanceLocked(addr), amount)
	b.saveLocked()
	return nil
}

// BalanceOf returns a copy of addr's balance.
func (b *Bank) BalanceOf(addr model.Address) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return model.Clone(b.balances[addr])
}

// Supply returns the sum of all balances.
func (b *Bank) Supply() *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := new(uint256.Int)
	for _, v := range b.balances {
		total.Add(total, v)
	}
	return total
}

// RejectIncoming makes addr refuse (or accept again) incoming transfers,
// like a contract without a payable receive hook.
func (b *Bank) RejectIncoming(addr model.Address, reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reject {
		b.rejecting[addr] = true
	} else {
		delete(b.rejecting, addr)
	}
}

// Transfer moves amount from one account to another.
func (b *Bank) Transfer(from, to model.Address, amount *uint256.Int) error {
	return b.Apply(Leg{From: from, To: to, Amount: amount})
}

// Apply executes all legs or none of them. Legs are applied in order, so a
// later leg may spend value credited by an earlier one. Zero legs are skipped.
func (b *Bank) Apply(legs ...Leg) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	work := make(map[model.Address]*uint256.Int)
	get := func(a model.Address) *uint256.Int {
		if v, ok := work[a]; ok {
			return v
		}
		v := model.Clone(b.balances[a])
		work[a] = v
		return v
	}

	for i, leg := range legs {
		if model.Zero(leg.Amount) {
			continue
		}
		if b.rejecting[leg.To] {
			return fmt.Errorf("leg %d to %s: %w", i, leg.To, model.ErrRejected)
		}
		src := get(leg.From)
		if src.Lt(leg.Amount) {
			return fmt.Errorf("leg %d from %s: %s balance %s < %s: %w",
				i, leg.From, b.denom, src.Dec(), leg.Amount.Dec(), model.ErrInsufficientFunds)
		}
		src.Sub(src, leg.Amount)
		dst := get(leg.To)
		dst.Add(dst, leg.Amount)
	}

	for a, v := range work {
		if v.IsZero() {
			delete(b.balances, a)
			continue
		}
		b.balances[a] = v
	}
	b.saveLocked()
	return nil
}

func (b *Bank) balanceLocked(addr model.Address) *uint256.Int {
	if v, ok := b.balances[addr]; ok {
		return v
	}
	return new(uint256.Int)
}

func (b *Bank) saveLocked() {
	if b.path == "" {
		return
	}
	raw := stateFile{
		Denom:     b.denom,
		Balances:  make(map[model.Address]string, len(b.balances)),
		UpdatedAt: time.Now(),
	}
	for a, v := range b.balances {
		raw.Balances[a] = v.Dec()
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err == nil {
		err = os.WriteFile(b.path, data, 0644)
	}
	if err != nil {
		log.Printf("[ERROR] failed to save %s bank state: %v", b.denom, err)
	}
}
