package ledger

import (
	"context"
	"fmt"
	"log"

	"TaxPool/internal/model"
	"TaxPool/internal/oracle"

	"github.com/holiman/uint256"
)

// FulfillRandomness resolves the pending distribution. Only the configured
// coordinator may call it, with a proof that verifies against its key.
// Unknown or already resolved request ids are ignored.
func (l *Ledger) FulfillRandomness(_ context.Context, caller model.Address, f oracle.Fulfillment) error {
	if caller != l.cfg.Coordinator {
		return fmt.Errorf("fulfill randomness by %s: %w", caller, model.ErrNotAuthorized)
	}
	if err := oracle.Verify(l.cfg.CoordinatorKey, f); err != nil {
		return fmt.Errorf("fulfill randomness: %v: %w", err, model.ErrNotAuthorized)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil || l.pending.RequestID != f.RequestID {
		log.Printf("[WARN] ignoring callback for request %s: %v", f.RequestID, model.ErrUnrecognizedRequest)
		return nil
	}

	requestID := l.pending.RequestID
	amount := model.Clone(l.pending.Snapshot)
	winner, status := l.selectLocked(f.Randomness)
	now := l.now()

	if err := l.payoutLocked(winner, amount); err != nil {
		l.pending = nil
		l.save()
		log.Printf("[ERROR] distribution %s to %s reverted: %v", requestID, winner, err)
		l.recordDistribution(&model.Distribution{
			RequestID: requestID,
			Recipient: winner,
			Amount:    amount,
			Status:    model.DistributionReverted,
			At:        now,
		})
		return fmt.Errorf("distribute %s: %w", requestID, err)
	}

	l.pool.Sub(l.pool, amount)
	l.lastDistribution = now
	l.fulfilled[requestID] = now
	l.pending = nil
	l.save()

	log.Printf("[INFO] distribution %s: %s ether to %s (%s)", requestID, model.FormatEther(amount), winner, status)
	l.recordDistribution(&model.Distribution{
		RequestID: requestID,
		Recipient: winner,
		Amount:    amount,
		Status:    status,
		At:        now,
	})
	return nil
}

// selectLocked draws the winner: index = r mod supply, then the holder whose
// cumulative balance range contains index. With no holders the dev wallet
// receives the pool.
func (l *Ledger) selectLocked(r *uint256.Int) (model.Address, string) {
	if l.book.supply.IsZero() {
		return l.cfg.DevWallet, model.DistributionFallback
	}
	index := new(uint256.Int).Mod(r, l.book.supply)
	winner, ok := l.book.pick(index)
	if !ok {
		// supply is the sum of the tree, so index < supply always lands
		panic(fmt.Sprintf("no holder for index %s of supply %s", index.Dec(), l.book.supply.Dec()))
	}
	return winner, model.DistributionPaid
}

// payoutLocked pays amount from the ledger's holdings to winner through the
// prize vault. The vault applies both legs atomically, so a failed release
// leaves the ledger's native balance untouched.
func (l *Ledger) payoutLocked(winner model.Address, amount *uint256.Int) error {
	if err := l.vault.FundAndRelease(l.cfg.Address, winner, amount); err != nil {
		return fmt.Errorf("payout: %w", err)
	}
	return nil
}

func (l *Ledger) recordDistribution(evt *model.Distribution) {
	if err := l.recorder.RecordDistribution(evt); err != nil {
		log.Printf("[ERROR] record distribution: %v", err)
	}
}
