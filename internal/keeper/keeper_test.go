package keeper

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"TaxPool/internal/bank"
	"TaxPool/internal/ledger"
	"TaxPool/internal/model"
	"TaxPool/internal/oracle"
	"TaxPool/internal/recorder"
	"TaxPool/internal/vault"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentMessages struct {
	mu   sync.Mutex
	msgs []string
}

func (s *sentMessages) SendWithRetry(_ context.Context, text string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, text)
	return nil
}

type env struct {
	keeper *Keeper
	ledger *ledger.Ledger
	coord  *oracle.Coordinator
	rec    *recorder.MemoryRecorder
	sent   *sentMessages
	clock  *clock
}

func newEnv(t *testing.T, oracleFunds uint64) *env {
	t.Helper()
	native, link := bank.New("ETH"), bank.New("LINK")
	if err := native.Mint("alice", model.Ether(10)); err != nil {
		t.Fatal(err)
	}
	if oracleFunds > 0 {
		if err := link.Mint("ledger", model.Ether(oracleFunds)); err != nil {
			t.Fatal(err)
		}
	}
	rec := recorder.NewMemoryRecorder()
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	coord := oracle.NewCoordinator("coordinator", link, "k", model.Ether(1), 4)
	l, err := ledger.New(ledger.Config{
		Address:        "ledger",
		DevWallet:      "dev",
		DevFeeBps:      100,
		TaxBps:         1900,
		SellTaxBps:     1900,
		Interval:       7 * 24 * time.Hour,
		RequestTimeout: time.Hour,
		Coordinator:    coord.Address(),
		CoordinatorKey: coord.PublicKey(),
		KeyID:          "k",
		OracleFee:      model.Ether(1),
	}, ledger.Deps{
		Native:   native,
		FeeToken: link,
		Vault:    vault.New(native, "vault", "owner", "ledger", rec),
		Oracle:   coord,
		Recorder: rec,
		Now:      c.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	sent := &sentMessages{}
	return &env{
		keeper: NewKeeper(context.Background(), l, sent, rec),
		ledger: l,
		coord:  coord,
		rec:    rec,
		sent:   sent,
		clock:  c,
	}
}

func TestRunUpkeepNow(t *testing.T) {
	e := newEnv(t, 5)

	if _, err := e.keeper.RunUpkeepNow(); !errors.Is(err, model.ErrNotDue) {
		t.Fatalf("expected ErrNotDue, got %v", err)
	}
	if _, err := e.ledger.Buy("alice", model.Ether(1)); err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(7 * 24 * time.Hour)

	id, err := e.keeper.RunUpkeepNow()
	if err != nil || id == "" {
		t.Fatalf("upkeep: %q, %v", id, err)
	}
	// the pending request keeps CheckDue true but PerformDue refuses
	if _, err := e.keeper.RunUpkeepNow(); !errors.Is(err, model.ErrRequestAlreadyPending) {
		t.Fatalf("expected ErrRequestAlreadyPending, got %v", err)
	}

	e.coord.Drain(context.Background())
	if !e.ledger.RequestFulfilled(id) {
		t.Error("request not fulfilled")
	}
	if !e.ledger.TaxPool().IsZero() {
		t.Error("pool not paid out")
	}
}

func TestUpkeepTask_AlertsOnMissingOracleFee(t *testing.T) {
	e := newEnv(t, 0)
	if _, err := e.ledger.Buy("alice", model.Ether(1)); err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(8 * 24 * time.Hour)

	e.keeper.upkeepTask()

	if len(e.sent.msgs) != 1 || !strings.Contains(e.sent.msgs[0], "预言机费用不足") {
		t.Errorf("messages = %q", e.sent.msgs)
	}
}

func TestSweepTask(t *testing.T) {
	e := newEnv(t, 5)
	if _, err := e.ledger.Buy("alice", model.Ether(1)); err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(7 * 24 * time.Hour)
	id, err := e.keeper.RunUpkeepNow()
	if err != nil {
		t.Fatal(err)
	}

	e.keeper.sweepTask()
	if len(e.sent.msgs) != 0 {
		t.Fatalf("swept too early: %q", e.sent.msgs)
	}
	e.clock.Advance(2 * time.Hour)
	e.keeper.sweepTask()
	if len(e.sent.msgs) != 1 || !strings.Contains(e.sent.msgs[0], id) {
		t.Fatalf("messages = %q", e.sent.msgs)
	}
	if e.ledger.Status().Pending != nil {
		t.Error("stale request still pending")
	}
}

func TestHandleCommand(t *testing.T) {
	e := newEnv(t, 5)
	if _, err := e.ledger.Buy("alice", model.Ether(1)); err != nil {
		t.Fatal(err)
	}

	if got := e.keeper.HandleCommand("/pool"); !strings.Contains(got, "0.19 ETH") {
		t.Errorf("/pool = %q", got)
	}
	if got := e.keeper.HandleCommand("/balance alice"); !strings.Contains(got, "0.8") || !strings.Contains(got, "100.00%") {
		t.Errorf("/balance = %q", got)
	}
	if got := e.keeper.HandleCommand("/balance"); !strings.Contains(got, "用法") {
		t.Errorf("/balance without address = %q", got)
	}
	if got := e.keeper.HandleCommand("/status"); !strings.Contains(got, "持有人数: 1") {
		t.Errorf("/status = %q", got)
	}
	if got := e.keeper.HandleCommand("/upkeep"); !strings.Contains(got, "未触发") {
		t.Errorf("/upkeep before due = %q", got)
	}
	if got := e.keeper.HandleCommand("/history"); !strings.Contains(got, "暂无") {
		t.Errorf("/history empty = %q", got)
	}

	e.clock.Advance(7 * 24 * time.Hour)
	if got := e.keeper.HandleCommand("/upkeep"); !strings.Contains(got, "已请求随机数") {
		t.Errorf("/upkeep when due = %q", got)
	}
	e.coord.Drain(context.Background())
	if got := e.keeper.HandleCommand("/history"); !strings.Contains(got, "alice") {
		t.Errorf("/history = %q", got)
	}
	if got := e.keeper.HandleCommand("hello"); got != usage {
		t.Errorf("unknown command = %q", got)
	}
}

func TestRegisterAll_BadSpec(t *testing.T) {
	e := newEnv(t, 1)
	if err := e.keeper.RegisterAll("not a cron", "0 * * * * *"); err == nil {
		t.Error("expected error for bad upkeep spec")
	}
	if err := e.keeper.RegisterAll("0 * * * * *", "0 0 0 * *"); err == nil {
		t.Error("expected error for five-field sweep spec")
	}
}
