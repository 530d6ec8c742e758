package notifier

import (
	"context"
	"log"

	"TaxPool/internal/model"
)

// Sender delivers a chat message.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// EventNotifier is a recorder.Recorder that turns distributions and
// emergency withdrawals into chat messages. Record calls never block: the
// message is queued and delivered by Run; when the queue is full it is
// dropped with a warning.
type EventNotifier struct {
	sender     Sender
	maxRetries int
	queue      chan string
}

// NewEventNotifier creates an EventNotifier with room for queueSize messages.
func NewEventNotifier(sender Sender, queueSize, maxRetries int) *EventNotifier {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &EventNotifier{
		sender:     sender,
		maxRetries: maxRetries,
		queue:      make(chan string, queueSize),
	}
}

// Run delivers queued messages until ctx is cancelled.
func (n *EventNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-n.queue:
			if err := n.sender.SendWithRetry(ctx, text, n.maxRetries); err != nil {
				log.Printf("[ERROR] send notification: %v", err)
			}
		}
	}
}

func (n *EventNotifier) enqueue(text string) {
	select {
	case n.queue <- text:
	default:
		log.Println("[WARN] notification queue full, dropping message")
	}
}

func (n *EventNotifier) RecordPurchase(_ *model.Purchase) error                     { return nil }
func (n *EventNotifier) RecordSale(_ *model.Sale) error                             { return nil }
func (n *EventNotifier) RecordRandomnessRequest(_ *model.RandomnessRequested) error { return nil }

func (n *EventNotifier) RecordDistribution(evt *model.Distribution) error {
	n.enqueue(FormatDistribution(evt))
	return nil
}

func (n *EventNotifier) RecordEmergencyWithdrawal(evt *model.EmergencyWithdrawal) error {
	n.enqueue(FormatEmergencyWithdrawal(evt))
	return nil
}

func (n *EventNotifier) Close() error { return nil }
