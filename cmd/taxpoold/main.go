package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"TaxPool/internal/api"
	"TaxPool/internal/bank"
	"TaxPool/internal/config"
	"TaxPool/internal/keeper"
	"TaxPool/internal/ledger"
	"TaxPool/internal/model"
	"TaxPool/internal/notifier"
	"TaxPool/internal/oracle"
	"TaxPool/internal/recorder"
	"TaxPool/internal/vault"

	"github.com/holiman/uint256"
)

func main() {
	issueFor := flag.String("issue-token", "", "print a bearer token for this account and exit")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] TaxPool starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}
	auth, err := api.NewAuthenticator([]byte(cfg.HTTP.JWTSecret), cfg.HTTP.TokenTTL)
	if err != nil {
		log.Fatalf("[FATAL] init authenticator: %v", err)
	}
	if *issueFor != "" {
		token, err := auth.Issue(model.Address(*issueFor))
		if err != nil {
			log.Fatalf("[FATAL] issue token: %v", err)
		}
		fmt.Println(token)
		return
	}
	for _, f := range []string{cfg.Ledger.StateFile, cfg.Bank.NativeStateFile, cfg.Bank.FeeStateFile} {
		if f == "" {
			continue
		}
		if dir := filepath.Dir(f); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				log.Fatalf("[FATAL] create state dir: %v", err)
			}
		}
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init native and fee token banks. Genesis and oracle funding are
	// minted only into a bank that has no saved state.
	native, restored, err := openBank("ETH", cfg.Bank.NativeStateFile)
	if err != nil {
		log.Fatalf("[FATAL] open native bank: %v", err)
	}
	if restored {
		log.Printf("[INFO] restored native balances from %s", cfg.Bank.NativeStateFile)
	} else {
		for addr, amount := range cfg.GenesisBalances() {
			if err := native.Mint(addr, amount); err != nil {
				log.Fatalf("[FATAL] genesis %s: %v", addr, err)
			}
		}
	}
	feeToken, restored, err := openBank("LINK", cfg.Bank.FeeStateFile)
	if err != nil {
		log.Fatalf("[FATAL] open fee token bank: %v", err)
	}
	ledgerAddr := model.Address(cfg.Ledger.Address)
	if !restored && !cfg.OracleFunding().IsZero() {
		if err := feeToken.Mint(ledgerAddr, cfg.OracleFunding()); err != nil {
			log.Fatalf("[FATAL] fund oracle fees: %v", err)
		}
	}

	// Init recorder
	var journal recorder.Recorder
	var history keeper.History
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using memory: %v", err)
			mem := recorder.NewMemoryRecorder()
			journal, history = mem, mem
		} else {
			journal, history = sr, sr
			defer sr.Close()
		}
	} else {
		mem := recorder.NewMemoryRecorder()
		journal, history = mem, mem
	}

	// Init Telegram notifier
	var (
		tn     *notifier.TelegramNotifier
		sender notifier.Sender
	)
	rec := recorder.Fanout{journal}
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sender = tn
		events := notifier.NewEventNotifier(tn, 64, 3)
		go events.Run(ctx)
		rec = append(rec, events)
	} else {
		log.Println("[WARN] telegram not configured, notifications disabled")
	}

	// Init oracle, vault and ledger
	coord := oracle.NewCoordinator(model.Address(cfg.Oracle.Coordinator), feeToken, cfg.Oracle.KeyID, cfg.OracleFee(), cfg.Oracle.QueueSize)
	pv := vault.New(native, model.Address(cfg.Vault.Address), model.Address(cfg.Vault.Owner), ledgerAddr, rec)
	led, err := ledger.New(cfg.LedgerConfig(coord.PublicKey()), ledger.Deps{
		Native:   native,
		FeeToken: feeToken,
		Vault:    pv,
		Oracle:   coord,
		Recorder: rec,
	})
	if err != nil {
		log.Fatalf("[FATAL] init ledger: %v", err)
	}
	restoreBacking(native, led)
	if p := led.Status().Pending; p != nil {
		// the old coordinator key is gone; the sweeper cancels the request
		log.Printf("[WARN] restored pending request %s cannot be fulfilled after restart", p.RequestID)
	}
	go coord.Run(ctx)

	// Init keeper
	kp := keeper.NewKeeper(ctx, led, sender, history)
	if err := kp.RegisterAll(cfg.Schedule.UpkeepCron, cfg.Schedule.SweepCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	kp.Start()
	defer kp.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, kp.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, checking upkeep now")
		go func() {
			if id, err := kp.RunUpkeepNow(); err != nil {
				log.Printf("[INFO] upkeep on start: %v", err)
			} else {
				log.Printf("[INFO] upkeep on start requested %s", id)
			}
		}()
	}

	// HTTP gateway
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(api.NewHandler(led, pv), auth),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[INFO] HTTP gateway listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[FATAL] http server: %v", err)
		}
	}()

	log.Println("[INFO] TaxPool is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] http shutdown: %v", err)
	}
	cancel()
	log.Println("[INFO] TaxPool stopped")
}

// openBank opens a file-backed bank, or an in-memory one when path is empty.
func openBank(denom, path string) (*bank.Bank, bool, error) {
	if path == "" {
		return bank.New(denom), false, nil
	}
	return bank.Open(denom, path)
}

// restoreBacking re-mints the native value behind restored token balances
// and pool when the native bank could not be restored with them.
func restoreBacking(native *bank.Bank, led *ledger.Ledger) {
	backing := new(uint256.Int).Add(led.TotalSupply(), led.TaxPool())
	held := native.BalanceOf(led.Address())
	if !held.Lt(backing) {
		return
	}
	missing := new(uint256.Int).Sub(backing, held)
	if err := native.Mint(led.Address(), missing); err != nil {
		log.Fatalf("[FATAL] restore ledger backing: %v", err)
	}
	log.Printf("[INFO] restored %s ether backing for persisted balances", model.FormatEther(missing))
}
