// Package keeper is the periodic trigger: it polls the ledger's CheckDue on
// a cron schedule, starts distributions with PerformDue, sweeps stale oracle
// requests and answers chat commands.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"TaxPool/internal/ledger"
	"TaxPool/internal/model"
	"TaxPool/internal/notifier"

	"github.com/holiman/uint256"
	"github.com/robfig/cron/v3"
)

// History lists past distributions, newest first.
type History interface {
	RecentDistributions(limit int) ([]model.Distribution, error)
}

// Keeper manages all cron tasks.
type Keeper struct {
	Cron     *cron.Cron
	Ledger   *ledger.Ledger
	Notifier notifier.Sender // optional
	History  History         // optional
	Ctx      context.Context
}

// NewKeeper creates a new Keeper.
func NewKeeper(ctx context.Context, l *ledger.Ledger, n notifier.Sender, h History) *Keeper {
	return &Keeper{
		Cron:     cron.New(cron.WithSeconds()),
		Ledger:   l,
		Notifier: n,
		History:  h,
		Ctx:      ctx,
	}
}

// RegisterAll registers the upkeep poll and the stale request sweep.
func (k *Keeper) RegisterAll(upkeepCron, sweepCron string) error {
	if _, err := k.Cron.AddFunc(upkeepCron, k.upkeepTask); err != nil {
		return fmt.Errorf("register upkeep task: %w", err)
	}
	if _, err := k.Cron.AddFunc(sweepCron, k.sweepTask); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (k *Keeper) Start() {
	k.Cron.Start()
	log.Println("[INFO] keeper started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (k *Keeper) Stop() {
	<-k.Cron.Stop().Done()
	log.Println("[INFO] keeper stopped")
}

// RunUpkeepNow checks and performs upkeep immediately (manual trigger / RUN_ON_START).
func (k *Keeper) RunUpkeepNow() (string, error) {
	due, payload := k.Ledger.CheckDue()
	if !due {
		return "", model.ErrNotDue
	}
	return k.Ledger.PerformDue(k.Ctx, payload)
}

func (k *Keeper) upkeepTask() {
	requestID, err := k.RunUpkeepNow()
	switch {
	case err == nil:
		log.Printf("[INFO] upkeep performed, randomness request %s", requestID)
	case errors.Is(err, model.ErrNotDue), errors.Is(err, model.ErrRequestAlreadyPending):
		// nothing to do this tick
	case errors.Is(err, model.ErrInsufficientOracleFee):
		log.Printf("[ERROR] upkeep: %v", err)
		k.trySend(fmt.Sprintf("⚠️ <b>预言机费用不足</b>\n\n%v", err))
	default:
		log.Printf("[ERROR] upkeep: %v", err)
	}
}

func (k *Keeper) sweepTask() {
	st := k.Ledger.Status()
	if k.Ledger.CancelStale() {
		msg := "⏱ 随机数请求超时，已取消"
		if st.Pending != nil {
			msg += fmt.Sprintf(": <code>%s</code>", st.Pending.RequestID)
		}
		k.trySend(msg)
	}
}

// HandleCommand processes a user command and returns a reply.
func (k *Keeper) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return usage
	}
	switch fields[0] {
	case "/status", "查看奖池状态":
		st := k.Ledger.Status()
		return notifier.FormatStatus(&st)
	case "/pool":
		return fmt.Sprintf("🏆 当前奖池: %s ETH", model.FormatEther(k.Ledger.TaxPool()))
	case "/balance":
		if len(fields) < 2 {
			return "用法: /balance <地址>"
		}
		return k.formatBalance(model.Address(fields[1]))
	case "/history", "查看开奖记录":
		if k.History == nil {
			return "未启用开奖记录"
		}
		items, err := k.History.RecentDistributions(10)
		if err != nil {
			log.Printf("[ERROR] load history: %v", err)
			return "读取开奖记录失败"
		}
		return notifier.FormatHistory(items)
	case "/upkeep":
		requestID, err := k.RunUpkeepNow()
		st := k.Ledger.Status()
		return notifier.FormatUpkeep(requestID, err, st.NextDistribution)
	default:
		return usage
	}
}

const usage = "可用命令:\n• /status 奖池状态\n• /pool 当前奖池\n• /balance <地址>\n• /history 开奖记录\n• /upkeep 立即检查开奖"

func (k *Keeper) formatBalance(account model.Address) string {
	bal := k.Ledger.BalanceOf(account)
	supply := k.Ledger.TotalSupply()
	share := "0%"
	if !supply.IsZero() && !bal.IsZero() {
		// basis points of supply, two decimals
		bps := new(uint256.Int).Mul(bal, uint256.NewInt(model.BpsDenominator))
		bps.Div(bps, supply)
		share = fmt.Sprintf("%d.%02d%%", bps.Uint64()/100, bps.Uint64()%100)
	}
	return notifier.FormatBalance(account, model.FormatEther(bal), share)
}

func (k *Keeper) trySend(text string) {
	if k.Notifier == nil {
		return
	}
	if err := k.Notifier.SendWithRetry(k.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
