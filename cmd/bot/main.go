package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"server_monitor_bot/internal/access"
	"server_monitor_bot/internal/commands"
	"server_monitor_bot/internal/config"
	"server_monitor_bot/internal/console"
	"server_monitor_bot/internal/health"
	"server_monitor_bot/internal/hostinfo"
	"server_monitor_bot/internal/logging"
	"server_monitor_bot/internal/metrics"
	"server_monitor_bot/internal/registration"
	"server_monitor_bot/internal/router"
	"server_monitor_bot/internal/store"
	"server_monitor_bot/internal/system"
	"server_monitor_bot/internal/telegram"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoLoadTimeout        = 10 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
	healthShutdownTimeout   = 5 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":       "startup",
		"persistence": cfg.PersistenceEnabled(),
		"console":     cfg.ConsoleEnabled,
	}).Info("configuration loaded")

	admins := append([]int64{cfg.BotOwnerID}, cfg.AdminUsers...)
	accessStore := access.NewStore(
		access.WithSeed(cfg.AuthorizedUsers),
		access.WithAdminSeed(admins),
	)
	registrations := registration.NewStore()

	var mongoManager *store.Manager
	if cfg.PersistenceEnabled() {
		mongoManager, err = setupPersistence(cfg, accessStore, registrations, logger)
		if err != nil {
			logger.WithError(err).Error("mongo persistence error")
			fmt.Fprintf(os.Stderr, "mongo persistence error: %v\n", err)
			os.Exit(1)
		}
	}

	recorder := metrics.New()
	if err := recorder.RegisterStoreGauges(accessStore, registrations); err != nil {
		logger.WithError(err).Error("metrics setup error")
		fmt.Fprintf(os.Stderr, "metrics setup error: %v\n", err)
		os.Exit(1)
	}

	handlers := commands.NewSet(
		hostinfo.NewProvider(cfg.DiskPath),
		system.NewExecutor(logger),
		accessStore,
		registrations,
		commands.Settings{
			Services: cfg.MonitoredServices,
			DiskPath: cfg.DiskPath,
			LogPath:  cfg.TailLogPath,
			LogLines: cfg.TailLogLines,
		},
		logger,
	)

	commandRouter, err := router.New(accessStore, handlers.Commands(), logger, router.WithRecorder(recorder))
	if err != nil {
		logger.WithError(err).Error("command router setup error")
		fmt.Fprintf(os.Stderr, "command router setup error: %v\n", err)
		os.Exit(1)
	}

	tgClient, err := telegram.NewClient(cfg, commandRouter, handlers, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var healthServer *health.Server
	if cfg.HTTPPort > 0 {
		var checker health.MongoChecker
		if mongoManager != nil {
			checker = mongoManager
		}
		healthServer = health.NewServer(cfg.HTTPPort, checker, recorder.Handler(), logger)
		go func() {
			if err := healthServer.ListenAndServe(); err != nil {
				logger.WithError(err).Error("health server error")
			}
		}()
	}

	if cfg.ConsoleEnabled {
		startConsole(signalCtx, accessStore, registrations, logger)
	}

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	if healthServer != nil {
		healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
		if err := healthServer.Shutdown(healthCtx); err != nil {
			logger.WithError(err).Error("health server shutdown error")
		}
		cancelHealth()
	}

	if mongoManager != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		if err := mongoManager.Close(shutdownCtx); err != nil {
			logger.WithError(err).Error("mongo disconnect error")
		} else {
			logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
		}
		cancelShutdown()
	}

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

// setupPersistence connects to Mongo, restores persisted state into the
// stores, mirrors the configured seeds and installs the write-through
// observers.
func setupPersistence(cfg config.Config, accessStore *access.Store, registrations *registration.Store, logger *logrus.Entry) (*store.Manager, error) {
	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	manager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		return nil, err
	}

	logger.WithFields(logging.Fields{
		"event":    "mongo_connect",
		"mongo_db": cfg.MongoDB,
	}).Info("connected to mongo")

	fail := func(err error) (*store.Manager, error) {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		_ = manager.Close(closeCtx)
		cancelClose()
		return nil, err
	}

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	err = manager.EnsureBaseIndexes(indexCtx)
	cancelIndexes()
	if err != nil {
		return fail(err)
	}

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), mongoLoadTimeout)
	defer cancelLoad()

	entries, err := store.LoadAccess(loadCtx, manager.Access())
	if err != nil {
		return fail(err)
	}
	accessStore.Restore(entries)

	regs, err := store.LoadRegistrations(loadCtx, manager.Registrations())
	if err != nil {
		return fail(err)
	}
	registrations.Restore(regs)

	accessMirror := store.NewAccessMirror(manager.Access(), accessStore, logger)
	if err := accessMirror.SyncAll(loadCtx, accessStore.List()); err != nil {
		return fail(err)
	}

	accessStore.SetObserver(accessMirror)
	registrations.SetObserver(store.NewRegistrationMirror(manager.Registrations(), logger))

	logger.WithFields(logging.Fields{
		"event":         "mongo_restore",
		"access":        len(entries),
		"registrations": len(regs),
	}).Info("restored persisted state")

	return manager, nil
}

// startConsole runs the operator console on stdin/stdout. Closing the console
// leaves the bot running.
func startConsole(ctx context.Context, accessStore *access.Store, registrations *registration.Store, logger *logrus.Entry) {
	operatorConsole, err := console.New(accessStore, registrations, os.Stdin, os.Stdout, logger)
	if err != nil {
		logger.WithError(err).Error("console setup error")
		return
	}

	go func() {
		if err := operatorConsole.Run(ctx); err != nil {
			logger.WithError(err).Warn("console stopped with error")
		}
	}()
}
