package ledger

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"TaxPool/internal/model"
)

// CheckDue reports whether a distribution should start: the interval has
// elapsed since the last one and the pool is not empty. The returned payload
// is the current pool amount (32 bytes, big endian); it is informational only.
func (l *Ledger) CheckDue() (bool, []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dueLocked(), l.poolPayloadLocked()
}

// PerformDue starts a distribution: the pool is snapshotted and randomness is
// requested. Nothing is paid until the oracle calls back. The payload is
// never trusted; due-ness is derived from current state.
func (l *Ledger) PerformDue(ctx context.Context, payload []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending != nil {
		return "", fmt.Errorf("perform upkeep: request %s outstanding: %w", l.pending.RequestID, model.ErrRequestAlreadyPending)
	}
	if !l.dueLocked() {
		return "", fmt.Errorf("perform upkeep: next distribution at %s: %w",
			l.lastDistribution.Add(l.cfg.Interval).Format("2006-01-02 15:04:05"), model.ErrNotDue)
	}
	if len(payload) > 0 && !bytes.Equal(payload, l.poolPayloadLocked()) {
		log.Printf("[WARN] upkeep payload is stale, using current pool %s", model.FormatEther(l.pool))
	}
	if l.feeToken.BalanceOf(l.cfg.Address).Lt(l.cfg.OracleFee) {
		return "", fmt.Errorf("perform upkeep: need %s %s: %w",
			l.cfg.OracleFee.Dec(), l.feeToken.Denom(), model.ErrInsufficientOracleFee)
	}

	requestID, err := l.oracle.RequestRandomness(ctx, l, l.cfg.KeyID, l.cfg.OracleFee)
	if err != nil {
		return "", fmt.Errorf("perform upkeep: %w", err)
	}

	now := l.now()
	l.pending = &model.PendingRequest{
		RequestID:   requestID,
		Snapshot:    model.Clone(l.pool),
		RequestedAt: now,
	}
	l.save()

	log.Printf("[INFO] distribution started: request %s for %s ether", requestID, model.FormatEther(l.pool))
	if err := l.recorder.RecordRandomnessRequest(&model.RandomnessRequested{
		RequestID: requestID,
		Snapshot:  model.Clone(l.pool),
		At:        now,
	}); err != nil {
		log.Printf("[ERROR] record randomness request: %v", err)
	}
	return requestID, nil
}

// CancelStale drops a pending request that has waited longer than the
// configured timeout, returning the ledger to idle. The pool and schedule
// are left alone so the next trigger starts a fresh draw. A callback that
// arrives later is ignored as unrecognized.
func (l *Ledger) CancelStale() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil || l.cfg.RequestTimeout <= 0 {
		return false
	}
	waited := l.now().Sub(l.pending.RequestedAt)
	if waited < l.cfg.RequestTimeout {
		return false
	}
	log.Printf("[WARN] randomness request %s unanswered for %s, cancelling", l.pending.RequestID, waited)
	l.pending = nil
	l.save()
	return true
}

func (l *Ledger) dueLocked() bool {
	if l.pool.IsZero() {
		return false
	}
	return !l.now().Before(l.lastDistribution.Add(l.cfg.Interval))
}

func (l *Ledger) poolPayloadLocked() []byte {
	b := l.pool.Bytes32()
	return b[:]
}
