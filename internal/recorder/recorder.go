package recorder

import (
	"errors"
	"sync"

	"TaxPool/internal/model"
)

// Recorder persists ledger and vault events for later analysis.
type Recorder interface {
	RecordPurchase(evt *model.Purchase) error
	RecordSale(evt *model.Sale) error
	RecordRandomnessRequest(evt *model.RandomnessRequested) error
	RecordDistribution(evt *model.Distribution) error
	RecordEmergencyWithdrawal(evt *model.EmergencyWithdrawal) error
	Close() error
}

// Fanout forwards every event to all recorders and joins their errors.
type Fanout []Recorder

func (f Fanout) RecordPurchase(evt *model.Purchase) error {
	return f.each(func(r Recorder) error { return r.RecordPurchase(evt) })
}

func (f Fanout) RecordSale(evt *model.Sale) error {
	return f.each(func(r Recorder) error { return r.RecordSale(evt) })
}

func (f Fanout) RecordRandomnessRequest(evt *model.RandomnessRequested) error {
	return f.each(func(r Recorder) error { return r.RecordRandomnessRequest(evt) })
}

func (f Fanout) RecordDistribution(evt *model.Distribution) error {
	return f.each(func(r Recorder) error { return r.RecordDistribution(evt) })
}

func (f Fanout) RecordEmergencyWithdrawal(evt *model.EmergencyWithdrawal) error {
	return f.each(func(r Recorder) error { return r.RecordEmergencyWithdrawal(evt) })
}

func (f Fanout) Close() error {
	return f.each(func(r Recorder) error { return r.Close() })
}

func (f Fanout) each(fn func(Recorder) error) error {
	var errs []error
	for _, r := range f {
		if err := fn(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryRecorder keeps events in memory. Used by tests and the simulator.
type MemoryRecorder struct {
	mu                   sync.Mutex
	Purchases            []model.Purchase
	Sales                []model.Sale
	Requests             []model.RandomnessRequested
	Distributions        []model.Distribution
	EmergencyWithdrawals []model.EmergencyWithdrawal
}

func NewMemoryRecorder() *MemoryRecorder { return &MemoryRecorder{} }

func (m *MemoryRecorder) RecordPurchase(evt *model.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Purchases = append(m.Purchases, *evt)
	return nil
}

func (m *MemoryRecorder) RecordSale(evt *model.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sales = append(m.Sales, *evt)
	return nil
}

func (m *MemoryRecorder) RecordRandomnessRequest(evt *model.RandomnessRequested) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, *evt)
	return nil
}

func (m *MemoryRecorder) RecordDistribution(evt *model.Distribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Distributions = append(m.Distributions, *evt)
	return nil
}

func (m *MemoryRecorder) RecordEmergencyWithdrawal(evt *model.EmergencyWithdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmergencyWithdrawals = append(m.EmergencyWithdrawals, *evt)
	return nil
}

func (m *MemoryRecorder) Close() error { return nil }

// DistributionEvents returns a copy of the recorded distributions.
func (m *MemoryRecorder) DistributionEvents() []model.Distribution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Distribution(nil), m.Distributions...)
}

// RecentDistributions returns up to limit distributions, newest first.
func (m *MemoryRecorder) RecentDistributions(limit int) ([]model.Distribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		return nil, nil
	}
	out := make([]model.Distribution, 0, limit)
	for i := len(m.Distributions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Distributions[i])
	}
	return out, nil
}
