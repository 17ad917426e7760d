// Package app wires the service together and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mastuka/tg-tool-bot/internal/config"
	"github.com/mastuka/tg-tool-bot/internal/database"
	"github.com/mastuka/tg-tool-bot/internal/engine"
	"github.com/mastuka/tg-tool-bot/internal/handlers"
	"github.com/mastuka/tg-tool-bot/internal/metrics"
	"github.com/mastuka/tg-tool-bot/internal/pool"
	"github.com/mastuka/tg-tool-bot/internal/protocol"
	"github.com/mastuka/tg-tool-bot/internal/protocol/inproc"
	"github.com/mastuka/tg-tool-bot/internal/repository"
	"github.com/mastuka/tg-tool-bot/internal/server"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Telegram account pool & forwarding service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := database.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	dialer, err := newDialer(cfg.Telegram)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	accounts := repository.NewAccountRepository(dbConn)
	rules := repository.NewRuleRepository(dbConn)

	accountPool := pool.New(cfg.Pool, cfg.Telegram, accounts, dialer, m)
	fwdEngine := engine.New(cfg.Forwarding, accountPool, rules, accounts, m)

	// rules persisted as running come back up with the process
	fwdEngine.RestartActiveRules(context.Background())

	h := handlers.NewHandlers(dbConn, accountPool, fwdEngine, accounts, rules)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fwdEngine.Close()
	accountPool.Close()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

// newDialer selects the protocol client implementation. The MTProto adapter
// is linked in by deployments that carry it; the in-process driver serves
// local development.
func newDialer(cfg config.TelegramConfig) (protocol.Dialer, error) {
	switch cfg.Driver {
	case "inproc":
		return inproc.NewNetwork().Dialer(), nil
	default:
		return nil, fmt.Errorf("unsupported telegram driver: %s", cfg.Driver)
	}
}
