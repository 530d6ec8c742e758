// Package vault implements the prize custody account. Only the registered
// ledger may release prizes; only the owner may use the emergency withdrawal.
package vault

import (
	"fmt"
	"log"
	"sync"
	"time"

	"TaxPool/internal/bank"
	"TaxPool/internal/model"
	"TaxPool/internal/recorder"

	"github.com/holiman/uint256"
)

// Vault holds a float of native value destined for prize payouts.
type Vault struct {
	mu       sync.Mutex
	bank     *bank.Bank
	addr     model.Address
	owner    model.Address
	ledger   model.Address
	balance  *uint256.Int
	recorder recorder.Recorder
	now      func() time.Time
}

// New creates a vault at addr. owner and ledger are fixed for its lifetime.
// Custody starts at whatever the bank already holds for addr, so a vault over
// a restored bank resumes its float.
func New(b *bank.Bank, addr, owner, ledger model.Address, rec recorder.Recorder) *Vault {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Vault{
		bank:     b,
		addr:     addr,
		owner:    owner,
		ledger:   ledger,
		balance:  b.BalanceOf(addr),
		recorder: rec,
		now:      time.Now,
	}
}

func (v *Vault) Address() model.Address { return v.addr }
func (v *Vault) Owner() model.Address   { return v.owner }
func (v *Vault) Ledger() model.Address  { return v.ledger }

// Balance returns the custody balance.
func (v *Vault) Balance() *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return model.Clone(v.balance)
}

// Deposit moves amount from the sender's account into custody. Anyone may
// top up the float.
func (v *Vault) Deposit(from model.Address, amount *uint256.Int) error {
	if model.Zero(amount) {
		return fmt.Errorf("deposit: %w", model.ErrInvalidAmount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.bank.Transfer(from, v.addr, amount); err != nil {
		return fmt.Errorf("deposit from %s: %w", from, err)
	}
	v.balance.Add(v.balance, amount)
	return nil
}

// ReleasePrize pays amount to recipient. Only the ledger may call it.
func (v *Vault) ReleasePrize(caller, recipient model.Address, amount *uint256.Int) error {
	if caller != v.ledger {
		return fmt.Errorf("release prize by %s: %w", caller, model.ErrNotAuthorized)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.payLocked("release prize", recipient, amount)
}

// FundAndRelease moves amount from the ledger through custody to recipient
// as one bank batch under the vault lock. Only the ledger may call it. If the
// recipient refuses the value neither leg happens.
func (v *Vault) FundAndRelease(caller, recipient model.Address, amount *uint256.Int) error {
	if caller != v.ledger {
		return fmt.Errorf("release prize by %s: %w", caller, model.ErrNotAuthorized)
	}
	if model.Zero(amount) {
		return fmt.Errorf("release prize: %w", model.ErrInvalidAmount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.bank.Apply(
		bank.Leg{From: caller, To: v.addr, Amount: amount},
		bank.Leg{From: v.addr, To: recipient, Amount: amount},
	); err != nil {
		return fmt.Errorf("release prize to %s: %w", recipient, err)
	}
	return nil
}

// EmergencyWithdraw pays amount to recipient. Only the owner may call it.
func (v *Vault) EmergencyWithdraw(caller, recipient model.Address, amount *uint256.Int) error {
	if caller != v.owner {
		return fmt.Errorf("emergency withdraw by %s: %w", caller, model.ErrNotAuthorized)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.payLocked("emergency withdraw", recipient, amount); err != nil {
		return err
	}
	log.Printf("[WARN] vault emergency withdrawal: %s ether to %s by %s",
		model.FormatEther(amount), recipient, caller)
	if err := v.recorder.RecordEmergencyWithdrawal(&model.EmergencyWithdrawal{
		Recipient: recipient,
		Amount:    model.Clone(amount),
		Initiator: caller,
		At:        v.now(),
	}); err != nil {
		log.Printf("[ERROR] record emergency withdrawal: %v", err)
	}
	return nil
}

func (v *Vault) payLocked(op string, recipient model.Address, amount *uint256.Int) error {
	if model.Zero(amount) {
		return fmt.Errorf("%s: %w", op, model.ErrInvalidAmount)
	}
	if v.balance.Lt(amount) {
		return fmt.Errorf("%s: vault holds %s, need %s: %w",
			op, v.balance.Dec(), amount.Dec(), model.ErrInsufficientFunds)
	}
	if err := v.bank.Transfer(v.addr, recipient, amount); err != nil {
		return fmt.Errorf("%s to %s: %w", op, recipient, err)
	}
	v.balance.Sub(v.balance, amount)
	return nil
}
