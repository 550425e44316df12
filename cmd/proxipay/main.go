package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/suspectuso/proxipay/internal/backend"
	"github.com/suspectuso/proxipay/internal/ble"
	"github.com/suspectuso/proxipay/internal/cart"
	"github.com/suspectuso/proxipay/internal/composer"
	"github.com/suspectuso/proxipay/internal/config"
	"github.com/suspectuso/proxipay/internal/httpapi"
	"github.com/suspectuso/proxipay/internal/logging"
	"github.com/suspectuso/proxipay/internal/notifier"
	"github.com/suspectuso/proxipay/internal/presence"
	"github.com/suspectuso/proxipay/internal/storage"
	"github.com/suspectuso/proxipay/internal/telegram"
)

const backendCheckEvery = time.Minute

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load config
	cfg := config.Load()

	// Setup logger
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	if envErr != nil {
		log.Debug("no .env file found")
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	if cfg.AccountIdentifier != "" {
		if _, err := store.AccountIdentifier(ctx); errors.Is(err, storage.ErrNotFound) {
			if err := store.SetAccountIdentifier(ctx, cfg.AccountIdentifier); err != nil {
				log.Error("seed account identifier", "error", err)
			}
		}
	}

	// Initialize backend client
	api := backend.NewClient(cfg.BackendBaseURL, cfg.BackendAPIKey, log, backend.WithTimeout(cfg.BackendTimeout))
	log.Info("backend client initialized", "base_url", cfg.BackendBaseURL)

	// Radio and presence
	radio := ble.NewDriver(log.With("component", "ble"))
	perms := presence.NewStaticPermissions(presence.ParsePermissions(cfg.GrantedPermissions)...)
	required := presence.RequiredPermissions(cfg.PlatformLevel)

	roster := presence.NewRoster(
		backend.NewProfileEnricher(api, log),
		log.With("component", "roster"),
		presence.WithStaleAfter(cfg.RosterStaleAfter),
		presence.WithEnrichWorkers(cfg.EnrichWorkers),
	)
	defer roster.Close()

	broadcaster := presence.NewBroadcaster(radio, perms, required, log.With("component", "broadcaster"))
	scanner := presence.NewScanner(radio, perms, required, roster, log.With("component", "scanner"),
		presence.WithSweepEvery(cfg.RosterSweepEvery),
	)

	// Composer history goes to storage
	recorder := composer.RecorderFunc(func(ctx context.Context, r composer.Record) error {
		status := storage.StatusFailed
		if r.Success {
			status = storage.StatusSent
		}
		_, err := store.AddPaymentRequest(ctx, storage.PaymentRequest{
			RequestID: r.RequestID,
			Requester: r.Requester,
			Payer:     r.Payer,
			Amount:    r.Amount,
			Status:    status,
			Message:   r.Message,
			CreatedAt: r.CreatedAt,
		})
		return err
	})
	newComposer := func() *composer.Composer {
		return composer.New(api, recorder, log.With("component", "composer"))
	}

	// Initialize telegram bot
	bot, err := telegram.New(cfg, store, broadcaster, scanner, cart.New(), newComposer, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized", "operators", len(cfg.OperatorIDs))

	// Operator notifications
	notify := notifier.New(bot, cfg.OperatorIDs, log)

	bcastStatus, stopBcast := broadcaster.Subscribe()
	defer stopBcast()
	go notify.WatchRadio(ctx, "Broadcast", bcastStatus)

	scanStatus, stopScan := scanner.Subscribe()
	defer stopScan()
	go notify.WatchRadio(ctx, "Nearby scan", scanStatus)

	go notifier.NewBackendMonitor(api, notify, log).Start(ctx, backendCheckEvery)

	// Start status server
	statusServer := httpapi.NewServer(roster, broadcaster, scanner, map[string]httpapi.Checker{
		"storage": store,
		"backend": api,
	}, log)
	go func() {
		if err := statusServer.Start(ctx, cfg.HTTPPort); err != nil {
			log.Error("status server", "error", err)
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)
}
