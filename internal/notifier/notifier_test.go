package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"TaxPool/internal/ledger"
	"TaxPool/internal/model"
)

func TestFormatDistribution(t *testing.T) {
	evt := &model.Distribution{
		RequestID: "req-1",
		Recipient: "0xabc",
		Amount:    model.Bps(model.Ether(1), 1900),
		Status:    model.DistributionPaid,
		At:        time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC),
	}
	msg := FormatDistribution(evt)
	for _, want := range []string{"开奖", "req-1", "0xabc", "0.19 ETH", "2024-03-11 08:00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}

	evt.Status = model.DistributionReverted
	if msg := FormatDistribution(evt); !strings.Contains(msg, "派奖失败") || !strings.Contains(msg, "重新抽取") {
		t.Errorf("reverted message:\n%s", msg)
	}
}

func TestFormatStatus_Pending(t *testing.T) {
	now := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	s := &ledger.Status{
		TaxPool:          model.Ether(2),
		TotalSupply:      model.Ether(8),
		Holders:          3,
		VaultBalance:     model.Ether(0),
		OracleFeeBalance: model.Ether(1),
		LastDistribution: now,
		NextDistribution: now.Add(7 * 24 * time.Hour),
		Pending: &model.PendingRequest{
			RequestID: "req-9", Snapshot: model.Ether(2), RequestedAt: now,
		},
	}
	msg := FormatStatus(s)
	for _, want := range []string{"奖池: 2 ETH", "持有人数: 3", "2024-03-18 08:00", "req-9"} {
		if !strings.Contains(msg, want) {
			t.Errorf("status missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatHistory_Empty(t *testing.T) {
	if got := FormatHistory(nil); !strings.Contains(got, "暂无") {
		t.Errorf("empty history = %q", got)
	}
}

type captureSender struct {
	mu   sync.Mutex
	msgs []string
	sent chan struct{}
}

func (c *captureSender) SendWithRetry(_ context.Context, text string, _ int) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
	c.sent <- struct{}{}
	return nil
}

func TestEventNotifier_DeliversDistributionsOnly(t *testing.T) {
	sender := &captureSender{sent: make(chan struct{}, 4)}
	n := NewEventNotifier(sender, 4, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	_ = n.RecordPurchase(&model.Purchase{Buyer: "a"})
	_ = n.RecordEmergencyWithdrawal(&model.EmergencyWithdrawal{
		Recipient: "safe", Amount: model.Ether(1), Initiator: "admin",
	})
	_ = n.RecordDistribution(&model.Distribution{
		RequestID: "req-1", Recipient: "bob", Amount: model.Ether(3), Status: model.DistributionPaid,
	})

	for i := 0; i < 2; i++ {
		select {
		case <-sender.sent:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for notification")
		}
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sender.msgs))
	}
	if !strings.Contains(sender.msgs[0], "紧急提取") || !strings.Contains(sender.msgs[1], "bob") {
		t.Errorf("messages = %q", sender.msgs)
	}
}

func TestEventNotifier_FullQueueDrops(t *testing.T) {
	n := NewEventNotifier(&captureSender{sent: make(chan struct{}, 1)}, 1, 0)
	evt := &model.Distribution{Amount: model.Ether(1), Status: model.DistributionPaid}
	if err := n.RecordDistribution(evt); err != nil {
		t.Fatal(err)
	}
	if err := n.RecordDistribution(evt); err != nil {
		t.Fatalf("full queue must not fail the caller: %v", err)
	}
	if len(n.queue) != 1 {
		t.Errorf("queue length = %d", len(n.queue))
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("token", "42", "")
	tn.APIBase = srv.URL
	if err := tn.Send(context.Background(), "<b>hi</b>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["chat_id"] != "42" || got["text"] != "<b>hi</b>" || got["parse_mode"] != "HTML" {
		t.Errorf("payload = %v", got)
	}
}

func TestTelegramNotifier_SendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("bad", "42", "")
	tn.APIBase = srv.URL
	err := tn.SendWithRetry(context.Background(), "x", 0)
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("expected 401 error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tn.SendWithRetry(ctx, "x", 3); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTelegramNotifier_PollingDispatchesCommands(t *testing.T) {
	var (
		mu      sync.Mutex
		replies []string
		polls   int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			mu.Lock()
			polls++
			first := polls == 1
			mu.Unlock()
			if first {
				w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"text":" /pool "}},{"update_id":8}]}`))
				return
			}
			if r.URL.Query().Get("offset") != "9" {
				t.Errorf("offset = %s", r.URL.Query().Get("offset"))
			}
			cancel()
			w.Write([]byte(`{"ok":true,"result":[]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			replies = append(replies, body["text"])
			mu.Unlock()
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("token", "42", "")
	tn.APIBase = srv.URL
	tn.StartPolling(ctx, func(cmd string) string { return "reply to " + cmd })

	mu.Lock()
	defer mu.Unlock()
	if len(replies) != 1 || replies[0] != "reply to /pool" {
		t.Errorf("replies = %q", replies)
	}
}
