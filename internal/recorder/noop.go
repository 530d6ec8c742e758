package recorder

import "TaxPool/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordPurchase(_ *model.Purchase) error                       { return nil }
func (n *NoopRecorder) RecordSale(_ *model.Sale) error                               { return nil }
func (n *NoopRecorder) RecordRandomnessRequest(_ *model.RandomnessRequested) error   { return nil }
func (n *NoopRecorder) RecordDistribution(_ *model.Distribution) error               { return nil }
func (n *NoopRecorder) RecordEmergencyWithdrawal(_ *model.EmergencyWithdrawal) error { return nil }
func (n *NoopRecorder) Close() error                                                 { return nil }
