// Command simulate runs the ledger, vault and oracle in-process against a
// fake clock and prints each weekly draw.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"TaxPool/internal/bank"
	"TaxPool/internal/ledger"
	"TaxPool/internal/model"
	"TaxPool/internal/oracle"
	"TaxPool/internal/recorder"
	"TaxPool/internal/vault"

	"github.com/holiman/uint256"
	"github.com/pterm/pterm"
)

const (
	ledgerAddr model.Address = "taxpool-ledger"
	devWallet  model.Address = "dev-wallet"
	week                     = 7 * 24 * time.Hour
)

func main() {
	weeks := flag.Int("weeks", 4, "number of weekly draws")
	traders := flag.Int("traders", 5, "number of trading accounts")
	trades := flag.Int("trades", 6, "trades per week")
	seed := flag.Uint64("seed", 1, "trade generator seed")
	flag.Parse()

	if err := run(*weeks, *traders, *trades, *seed); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run(weeks, traders, trades int, seed uint64) error {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	native, link := bank.New("ETH"), bank.New("LINK")
	accounts := make([]model.Address, traders)
	for i := range accounts {
		accounts[i] = model.Address(fmt.Sprintf("trader-%02d", i+1))
		if err := native.Mint(accounts[i], model.Ether(100)); err != nil {
			return err
		}
	}
	if err := link.Mint(ledgerAddr, model.Ether(uint64(weeks)+1)); err != nil {
		return err
	}

	rec := recorder.NewMemoryRecorder()
	coord := oracle.NewCoordinator("vrf-coordinator", link, "sim", model.Bps(model.Ether(1), 1000), 4)
	pv := vault.New(native, "prize-vault", "vault-owner", ledgerAddr, rec)
	led, err := ledger.New(ledger.Config{
		Address:        ledgerAddr,
		DevWallet:      devWallet,
		DevFeeBps:      100,
		TaxBps:         1900,
		SellTaxBps:     1900,
		MinPurchase:    model.Bps(model.Ether(1), 100),
		Interval:       week,
		RequestTimeout: time.Hour,
		Coordinator:    coord.Address(),
		CoordinatorKey: coord.PublicKey(),
		KeyID:          "sim",
		OracleFee:      model.Bps(model.Ether(1), 1000),
	}, ledger.Deps{
		Native: native, FeeToken: link, Vault: pv, Oracle: coord, Recorder: rec, Now: clock,
	})
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	pterm.DefaultSection.Println("TaxPool simulation")
	pterm.Info.Printfln("%d traders, %d trades per week, %d weeks", traders, trades, weeks)

	draws := pterm.TableData{{"Week", "Pool (ETH)", "Winner", "Prize (ETH)", "Status"}}
	for w := 1; w <= weeks; w++ {
		for i := 0; i < trades; i++ {
			who := accounts[rng.IntN(len(accounts))]
			now = now.Add(week / time.Duration(trades+1))
			trade(led, who, rng)
		}
		now = now.Add(week)

		pool := led.TaxPool()
		due, aux := led.CheckDue()
		if !due {
			draws = append(draws, []string{fmt.Sprint(w), model.FormatEther(pool), "-", "-", "not due"})
			continue
		}
		if _, err := led.PerformDue(ctx, aux); err != nil {
			pterm.Warning.Printfln("week %d: %v", w, err)
			continue
		}
		coord.Drain(ctx)

		evts := rec.DistributionEvents()
		last := evts[len(evts)-1]
		draws = append(draws, []string{
			fmt.Sprint(w), model.FormatEther(pool), string(last.Recipient), model.FormatEther(last.Amount), last.Status,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(draws).Render(); err != nil {
		return err
	}

	holders := pterm.TableData{{"Account", "Tokens", "ETH"}}
	for _, a := range accounts {
		holders = append(holders, []string{string(a), model.FormatEther(led.BalanceOf(a)), model.FormatEther(native.BalanceOf(a))})
	}
	holders = append(holders, []string{string(devWallet), "-", model.FormatEther(native.BalanceOf(devWallet))})
	pterm.DefaultSection.Println("Final balances")
	if err := pterm.DefaultTable.WithHasHeader().WithData(holders).Render(); err != nil {
		return err
	}

	backing := new(uint256.Int).Add(led.TotalSupply(), led.TaxPool())
	if held := native.BalanceOf(ledgerAddr); !held.Eq(backing) {
		return fmt.Errorf("conservation violated: ledger holds %s, owes %s", held.Dec(), backing.Dec())
	}
	pterm.Success.Printfln("conservation holds: ledger backs %s ETH of tokens and pool", model.FormatEther(backing))
	return nil
}

// trade buys with probability 2/3, otherwise sells up to half the balance.
func trade(led *ledger.Ledger, who model.Address, rng *rand.Rand) {
	bal := led.BalanceOf(who)
	if bal.IsZero() || rng.IntN(3) > 0 {
		// 0.05 to 2 ether in 0.05 steps
		payment := model.Bps(model.Ether(1), uint64(500*(1+rng.IntN(40))))
		if _, err := led.Buy(who, payment); err != nil {
			pterm.Warning.Printfln("%s buy %s: %v", who, model.FormatEther(payment), err)
		}
		return
	}
	half := new(uint256.Int).Rsh(bal, 1)
	if half.IsZero() {
		return
	}
	if _, err := led.Sell(who, half); err != nil {
		pterm.Warning.Printfln("%s sell %s: %v", who, model.FormatEther(half), err)
	}
}
