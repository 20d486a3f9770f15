/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fleet ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire the four engines (posting, locks, balances, chain)
  4. Optionally connect the MQTT change-notification broker
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (env fallback in parentheses):
  -port    HTTP server port (PORT, default: 8080)
  -db      SQLite database path (DB_PATH, default: fleet.db)
           Use ":memory:" for an in-memory database
  -broker  MQTT broker URL for change hints (MQTT_BROKER, default: off)

CONFIGURATION (env only):
  LOG_LEVEL            logrus level name (default: info)
  ADJUSTMENT_ITEM      stock item ID used by balance adjustments (default: fuel)
  WINTER_START_MONTH   recurring winter start (default: 11)
  SUMMER_START_MONTH   recurring summer start (default: 4)
  URBAN_MODIFIER       fractional surcharges for the calculator
  COLD_START_MODIFIER  (defaults: 0.10 / 0.05 / 0.15)
  MOUNTAIN_MODIFIER

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for
  active requests, close the broker and database, exit.

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/motorpool/fleet-ledger/api"
	"github.com/motorpool/fleet-ledger/fleet"
	"github.com/motorpool/fleet-ledger/fuel"
	"github.com/motorpool/fleet-ledger/notify"
	"github.com/motorpool/fleet-ledger/store/sqlite"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	log := logrus.New()
	if level, err := logrus.ParseLevel(envString("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(level)
	}

	// Flags
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envString("DB_PATH", "fleet.db"), "SQLite database path")
	brokerURL := flag.String("broker", envString("MQTT_BROKER", ""), "MQTT broker URL for change notifications")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	// Change notifications: always local, plus MQTT when configured.
	local := notify.NewLocal()
	notifier := notify.Fanout{local}
	if *brokerURL != "" {
		broker, err := notify.NewBroker(*brokerURL, fmt.Sprintf("fleet-ledger-%d", os.Getpid()), log)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to notification broker")
		}
		defer broker.Close()
		notifier = append(notifier, broker)
		log.WithField("broker", *brokerURL).Info("change notifications enabled")
	}

	// Engines
	season := fuel.SeasonSettings{
		Rule:             fuel.SeasonRecurring,
		WinterStartMonth: time.Month(envInt("WINTER_START_MONTH", 11)),
		SummerStartMonth: time.Month(envInt("SUMMER_START_MONTH", 4)),
	}
	modifiers := fuel.Modifiers{
		Urban:     envDecimal("URBAN_MODIFIER", "0.10"),
		ColdStart: envDecimal("COLD_START_MODIFIER", "0.05"),
		Mountain:  envDecimal("MOUNTAIN_MODIFIER", "0.15"),
	}

	locks := fleet.NewLockService(store, log)
	locks.Notify = notifier

	posting := fleet.NewPostingEngine(store, locks, log)
	posting.Notify = notifier
	posting.AdjustmentItem = fleet.ItemID(envString("ADJUSTMENT_ITEM", "fuel"))

	balances := fleet.NewBalanceService(store, posting, log)
	balances.Notify = notifier

	chain := fleet.NewChainRecalculator(store, season, modifiers, log)
	chain.Notify = notifier

	// HTTP surface
	handler := api.NewHandler(store, posting, locks, balances, chain, log)
	handler.Notify = notifier
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDecimal(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}
