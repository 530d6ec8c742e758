// Package ledger owns token balances and the tax pool. Buys and sells are
// taxed into the pool; once per interval the pool is paid, through the prize
// vault, to one holder drawn with probability proportional to balance.
package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"TaxPool/internal/bank"
	"TaxPool/internal/model"
	"TaxPool/internal/oracle"
	"TaxPool/internal/recorder"

	"github.com/holiman/uint256"
	"go.dedis.ch/kyber/v4"
)

// Config holds the construction parameters. They are fixed for the life of
// the ledger.
type Config struct {
	Address   model.Address
	DevWallet model.Address

	DevFeeBps   uint64
	TaxBps      uint64
	SellTaxBps  uint64
	MinPurchase *uint256.Int

	Interval       time.Duration
	RequestTimeout time.Duration // 0 waits for the oracle forever

	Coordinator    model.Address
	CoordinatorKey kyber.Point
	KeyID          string
	OracleFee      *uint256.Int

	StateFile string // empty keeps state in memory only
}

// Validate checks rates and required identities.
func (c *Config) Validate() error {
	if c.Address == "" || c.DevWallet == "" || c.Coordinator == "" {
		return fmt.Errorf("ledger, dev wallet and coordinator addresses are required")
	}
	if c.DevFeeBps+c.TaxBps >= model.BpsDenominator {
		return fmt.Errorf("dev fee %d bps + tax %d bps must stay below 100%%", c.DevFeeBps, c.TaxBps)
	}
	if c.SellTaxBps >= model.BpsDenominator {
		return fmt.Errorf("sell tax %d bps must stay below 100%%", c.SellTaxBps)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("distribution interval must be positive")
	}
	if c.CoordinatorKey == nil {
		return fmt.Errorf("coordinator public key is required")
	}
	return nil
}

// PrizeVault is the custody side of a distribution.
type PrizeVault interface {
	Address() model.Address
	Balance() *uint256.Int
	FundAndRelease(caller, recipient model.Address, amount *uint256.Int) error
}

// RandomnessSource issues randomness requests; fulfillment arrives later
// through FulfillRandomness.
type RandomnessSource interface {
	RequestRandomness(ctx context.Context, consumer oracle.Consumer, keyID string, fee *uint256.Int) (string, error)
}

// Deps are the collaborators wired in at construction.
type Deps struct {
	Native   *bank.Bank // chain currency: payments, fees, prizes
	FeeToken *bank.Bank // oracle fee token
	Vault    PrizeVault
	Oracle   RandomnessSource
	Recorder recorder.Recorder
	Now      func() time.Time
}

// Ledger handles taxed buy/sell and the distribution lifecycle with
// concurrency safety: every operation runs under one mutex.
type Ledger struct {
	mu sync.Mutex

	cfg      Config
	native   *bank.Bank
	feeToken *bank.Bank
	vault    PrizeVault
	oracle   RandomnessSource
	recorder recorder.Recorder
	now      func() time.Time

	book             *book
	pool             *uint256.Int
	lastDistribution time.Time
	pending          *model.PendingRequest
	fulfilled        map[string]time.Time
}

// New creates a Ledger, loading state from cfg.StateFile when present.
func New(cfg Config, deps Deps) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ledger config: %w", err)
	}
	if deps.Native == nil || deps.FeeToken == nil || deps.Vault == nil || deps.Oracle == nil {
		return nil, fmt.Errorf("ledger: native bank, fee token, vault and oracle are required")
	}
	if cfg.MinPurchase == nil {
		cfg.MinPurchase = new(uint256.Int)
	}
	if cfg.OracleFee == nil {
		cfg.OracleFee = new(uint256.Int)
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	l := &Ledger{
		cfg:      cfg,
		native:   deps.Native,
		feeToken: deps.FeeToken,
		vault:    deps.Vault,
		oracle:   deps.Oracle,
		recorder: deps.Recorder,
		now:      deps.Now,
		book:     newBook(),
	}

	var state *model.LedgerState
	if cfg.StateFile != "" {
		loaded, err := LoadState(cfg.StateFile)
		if err != nil {
			return nil, fmt.Errorf("load ledger state: %w", err)
		}
		state = loaded
	}
	if state == nil {
		state = model.NewLedgerState(l.now())
	}
	for addr, bal := range state.Balances {
		l.book.credit(addr, bal)
	}
	l.pool = model.Clone(state.TaxPool)
	l.lastDistribution = state.LastDistribution
	l.pending = state.Pending
	l.fulfilled = state.Fulfilled

	l.save()
	return l, nil
}

// Address implements oracle.Consumer.
func (l *Ledger) Address() model.Address { return l.cfg.Address }

// VaultAddress returns the prize vault's identity.
func (l *Ledger) VaultAddress() model.Address { return l.vault.Address() }

// BalanceOf returns the token balance of account.
func (l *Ledger) BalanceOf(account model.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book.balanceOf(account)
}

// TaxPool returns the undistributed tax.
func (l *Ledger) TaxPool() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.Clone(l.pool)
}

// TotalSupply returns the sum of all token balances.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.Clone(l.book.supply)
}

// Holders returns all non-zero balances in draw order.
func (l *Ledger) Holders() []Holding {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book.holdings()
}

// RequestFulfilled reports whether a randomness request has been resolved.
func (l *Ledger) RequestFulfilled(requestID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.fulfilled[requestID]
	return ok
}

// Status is a point-in-time view for operators.
type Status struct {
	TaxPool          *uint256.Int
	TotalSupply      *uint256.Int
	Holders          int
	VaultBalance     *uint256.Int
	OracleFeeBalance *uint256.Int
	LastDistribution time.Time
	NextDistribution time.Time
	Pending          *model.PendingRequest
}

// Status returns a snapshot of the ledger.
func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Status{
		TaxPool:          model.Clone(l.pool),
		TotalSupply:      model.Clone(l.book.supply),
		Holders:          l.book.tree.Len(),
		VaultBalance:     l.vault.Balance(),
		OracleFeeBalance: l.feeToken.BalanceOf(l.cfg.Address),
		LastDistribution: l.lastDistribution,
		NextDistribution: l.lastDistribution.Add(l.cfg.Interval),
	}
	if l.pending != nil {
		p := *l.pending
		p.Snapshot = model.Clone(p.Snapshot)
		s.Pending = &p
	}
	return s
}

// Buy exchanges payment (native value) for tokens. The dev fee is forwarded
// to the dev wallet and the tax is added to the pool.
func (l *Ledger) Buy(caller model.Address, payment *uint256.Int) (*uint256.Int, error) {
	if l.reserved(caller) {
		return nil, fmt.Errorf("buy by %s: reserved account: %w", caller, model.ErrNotAuthorized)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if model.Zero(payment) || payment.Lt(l.cfg.MinPurchase) {
		return nil, fmt.Errorf("buy %s: minimum purchase %s not met: %w",
			model.Clone(payment).Dec(), l.cfg.MinPurchase.Dec(), model.ErrInvalidAmount)
	}

	devFee := model.Bps(payment, l.cfg.DevFeeBps)
	tax := model.Bps(payment, l.cfg.TaxBps)
	net := new(uint256.Int).Sub(payment, devFee)
	net.Sub(net, tax)

	if err := l.native.Apply(
		bank.Leg{From: caller, To: l.cfg.Address, Amount: payment},
		bank.Leg{From: l.cfg.Address, To: l.cfg.DevWallet, Amount: devFee},
	); err != nil {
		return nil, fmt.Errorf("buy by %s: %w", caller, err)
	}

	l.book.credit(caller, net)
	l.pool.Add(l.pool, tax)
	l.save()

	log.Printf("[INFO] purchase: %s paid %s ether, issued %s, tax %s",
		caller, model.FormatEther(payment), model.FormatEther(net), model.FormatEther(tax))
	if err := l.recorder.RecordPurchase(&model.Purchase{
		Buyer:        caller,
		Payment:      model.Clone(payment),
		TokensIssued: model.Clone(net),
		DevFee:       devFee,
		Tax:          tax,
		At:           l.now(),
	}); err != nil {
		log.Printf("[ERROR] record purchase: %v", err)
	}
	return net, nil
}

// Sell burns amount tokens and pays their value, minus the sell tax, back
// to the caller.
func (l *Ledger) Sell(caller model.Address, amount *uint256.Int) (*uint256.Int, error) {
	if l.reserved(caller) {
		return nil, fmt.Errorf("sell by %s: reserved account: %w", caller, model.ErrNotAuthorized)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if model.Zero(amount) {
		return nil, fmt.Errorf("sell: cannot sell zero tokens: %w", model.ErrInvalidAmount)
	}
	if err := l.book.debit(caller, amount); err != nil {
		return nil, fmt.Errorf("sell: %w", err)
	}

	tax := model.Bps(amount, l.cfg.SellTaxBps)
	proceeds := new(uint256.Int).Sub(amount, tax)

	if err := l.native.Transfer(l.cfg.Address, caller, proceeds); err != nil {
		l.book.credit(caller, amount)
		return nil, fmt.Errorf("sell: pay %s: %w", caller, err)
	}
	l.pool.Add(l.pool, tax)
	l.save()

	log.Printf("[INFO] sale: %s sold %s, received %s ether, tax %s",
		caller, model.FormatEther(amount), model.FormatEther(proceeds), model.FormatEther(tax))
	if err := l.recorder.RecordSale(&model.Sale{
		Seller:   caller,
		Amount:   model.Clone(amount),
		Proceeds: proceeds,
		Tax:      tax,
		At:       l.now(),
	}); err != nil {
		log.Printf("[ERROR] record sale: %v", err)
	}
	return proceeds, nil
}

// reserved reports whether addr is one of the system accounts whose native
// balance backs the token supply, the pool or the prize custody. They may
// not trade.
func (l *Ledger) reserved(addr model.Address) bool {
	return addr == "" || addr == l.cfg.Address || addr == l.vault.Address() || addr == l.cfg.Coordinator
}

func (l *Ledger) snapshotLocked() *model.LedgerState {
	state := model.NewLedgerState(l.lastDistribution)
	for _, h := range l.book.holdings() {
		state.Balances[h.Account] = h.Balance
	}
	state.TaxPool = model.Clone(l.pool)
	state.Pending = l.pending
	for id, at := range l.fulfilled {
		state.Fulfilled[id] = at
	}
	return state
}

func (l *Ledger) save() {
	if l.cfg.StateFile == "" {
		return
	}
	if err := SaveState(l.cfg.StateFile, l.snapshotLocked()); err != nil {
		log.Printf("[ERROR] failed to save ledger state: %v", err)
	}
}
