package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/alerts"
	"github.com/xela07ax/crisisguard-client/internal/audit"
	"github.com/xela07ax/crisisguard-client/internal/bridge"
	"github.com/xela07ax/crisisguard-client/internal/channel"
	"github.com/xela07ax/crisisguard-client/internal/connectors"
	"github.com/xela07ax/crisisguard-client/internal/console/handler"
	"github.com/xela07ax/crisisguard-client/internal/console/server"
	"github.com/xela07ax/crisisguard-client/internal/console/service"
	"github.com/xela07ax/crisisguard-client/internal/engine"
	"github.com/xela07ax/crisisguard-client/internal/infra"
	"github.com/xela07ax/crisisguard-client/internal/infra/auth"
	"github.com/xela07ax/crisisguard-client/internal/notify"
	"github.com/xela07ax/crisisguard-client/internal/repository"
	"github.com/xela07ax/crisisguard-client/internal/scanner"
	"github.com/xela07ax/crisisguard-client/internal/tooltip"
)

const journalBuffer = 1000

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// 1. Конфиг и логгер
	loader := infra.NewConfigLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := infra.MustLogger(cfg.Logger)
	defer func() { _ = logger.Sync() }()

	// Контекст жизненного цикла: SIGINT/SIGTERM останавливают все фоновые горутины
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 2. Хранилище: слот последней тревоги и журнал пачками
	openCtx, cancel := context.WithTimeout(appCtx, 10*time.Second)
	store, err := repository.Open(openCtx, cfg.Storage)
	cancel()
	if err != nil {
		logger.Fatal("storage unavailable", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	journal := audit.NewJournal(store, journalBuffer, metrics, logger)
	journal.Start()

	notifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		logger.Fatal("notifier", zap.Error(err))
	}

	// 3. Тревоги: канал -> диспетчер -> уведомление + слот
	dispatcher := alerts.NewDispatcher(notifier, store, journal, metrics, logger, alerts.Options{})
	dispatcher.Start()

	manager := channel.NewManager(channel.OptionsFromConfig(cfg.Channel), dispatcher, metrics, logger)
	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		if err := manager.Run(appCtx); err != nil {
			logger.Error("channel manager", zap.Error(err))
		}
	}()

	// 4. Мост конфигурации к агенту
	agent := connectors.NewAgentClient(cfg.Agent.BaseURL, cfg.Agent.RequestTimeout, logger)
	cfgBridge := bridge.New(agent, cfg.Agent.BaseURL, notifier, journal, logger)

	if cfg.Agent.PushOnStart {
		go func() {
			if _, err := cfgBridge.PushConfig(appCtx, cfg.Agent.Rates); err != nil {
				logger.Warn("initial config push failed", zap.Error(err))
			}
		}()
	}

	current := cfg.Agent.Rates
	loader.Watch(func(next *infra.Config, err error) {
		if err != nil {
			logger.Error("config reload failed", zap.Error(err))
			return
		}
		if reflect.DeepEqual(next.Agent.Rates, current) {
			return
		}
		current = next.Agent.Rates
		logger.Info("rates changed, pushing to agent")
		if _, err := cfgBridge.PushConfig(appCtx, current); err != nil {
			logger.Warn("config push after reload failed", zap.Error(err))
		}
	})

	// 5. Сканер ссылок: клиент классификатора за Reliability (rate limit, retries, circuit breaker)
	scanClient := connectors.NewScanClient(cfg.Scanner.BaseURL, cfg.Scanner.RequestTimeout)
	classifier := engine.NewReliabilityWrapper(scanClient, cfg.Scanner, metrics, logger)
	linkScanner := scanner.New(classifier, journal, metrics, logger, scanner.Options{
		FlashDuration: cfg.Scanner.FlashDuration,
		Tooltip:       tooltip.Options{Fade: cfg.Scanner.FadeDuration},
	})
	pages := service.NewPageService(linkScanner, cfg.Scanner.RequestTimeout, logger)

	// 6. Console API
	var (
		tokens auth.TokenValidator
		keys   auth.KeyValidator
	)
	if len(cfg.Console.PublicKey) > 0 {
		pub, err := auth.ParseRSAPublicKey(cfg.Console.PublicKey)
		if err != nil {
			logger.Fatal("console public key", zap.Error(err))
		}
		tokens = auth.NewBaseValidator(pub)
	}
	if cfg.Console.APIKeyHash != "" {
		keys = auth.NewAPIKeyValidator(cfg.Console.APIKeyHash)
	}
	if tokens == nil && keys == nil {
		logger.Warn("console auth disabled, keep console.addr on loopback", zap.String("addr", cfg.Console.Addr))
	}

	var consoleGatherer prometheus.Gatherer
	if cfg.Metrics.Addr == "" {
		consoleGatherer = reg
	}
	api := server.NewConsoleServer(logger, tokens, keys, server.Handlers{
		Alerts:  handler.NewAlertHandler(store, logger),
		Channel: handler.NewChannelHandler(manager),
		Agent:   handler.NewAgentHandler(cfgBridge, logger),
		Pages:   handler.NewPageHandler(pages, logger),
		Journal: handler.NewJournalHandler(store, logger),
	}, consoleGatherer)

	srv := &http.Server{
		Addr:         cfg.Console.Addr,
		Handler:      api,
		ReadTimeout:  cfg.Console.ReadTimeout,
		WriteTimeout: cfg.Console.WriteTimeout,
	}
	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("console listen", zap.Error(err))
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listen", zap.Error(err))
			}
		}()
	}

	// 7. Graceful Shutdown
	<-appCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("console shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	// Порядок важен: канал перестает кормить диспетчер, диспетчер дописывает
	// в журнал, журнал сбрасывает буфер, и только потом закрываем хранилище
	<-managerDone
	dispatcher.Stop()
	journal.Stop()
	if err := store.Close(); err != nil {
		logger.Error("storage close", zap.Error(err))
	}
	logger.Info("stopped")
}
