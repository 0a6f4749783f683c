package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/neway-security/clocking-monitor/internal/clock"
	"github.com/neway-security/clocking-monitor/internal/config"
	"github.com/neway-security/clocking-monitor/internal/coordinator"
	"github.com/neway-security/clocking-monitor/internal/diagnostics"
	"github.com/neway-security/clocking-monitor/internal/feed"
	httpapi "github.com/neway-security/clocking-monitor/internal/http"
	"github.com/neway-security/clocking-monitor/internal/http/handlers"
	"github.com/neway-security/clocking-monitor/internal/logging"
	"github.com/neway-security/clocking-monitor/internal/loop"
	"github.com/neway-security/clocking-monitor/internal/metrics"
	"github.com/neway-security/clocking-monitor/internal/mqttclient"
	"github.com/neway-security/clocking-monitor/internal/poller"
	"github.com/neway-security/clocking-monitor/internal/remote"
	"github.com/neway-security/clocking-monitor/internal/signals"
	"github.com/neway-security/clocking-monitor/internal/storage"
	"github.com/neway-security/clocking-monitor/internal/stream"
	"github.com/neway-security/clocking-monitor/internal/timer"
	"github.com/neway-security/clocking-monitor/internal/visibility"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("monitor terminated with error", "err", err)
		os.Exit(1)
	}
	logger.Info("monitor stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		return err
	}
	repo, err := storage.New(ctx, cfg.DBPath, logging.Component(logger, "storage"))
	if err != nil {
		return err
	}
	defer repo.Close()
	journal := storage.NewJournal(repo, 0, logging.Component(logger, "storage"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.New(registry)
	if err != nil {
		return err
	}

	latest := signals.NewLatest()
	sink := signals.Fanout{latest}

	var bridge *mqttclient.Bridge
	var broker *mqttclient.Client
	if cfg.MQTT.Enabled() {
		broker, err = mqttclient.NewClient(mqttclient.Config{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			ClientID: cfg.MQTT.ClientID,
		})
		if err != nil {
			logger.Warn("mqtt unavailable; publishing disabled", "host", cfg.MQTT.Host, "err", err)
		} else {
			defer broker.Close()
			bridge = mqttclient.NewBridge(broker, cfg.MQTT.BaseTopic, 0, logging.Component(logger, "mqtt"))
			sink = append(sink, bridge)
		}
	} else {
		logger.Info("MQTT_HOST is empty; mqtt publishing disabled")
	}

	// The hub and the player report into the coordinator, which is built
	// from components that already need the sink; both are bound below
	// before the loop runs.
	var (
		hub   *handlers.Hub
		coord *coordinator.Coordinator
	)
	sink = append(sink, signals.SinkFunc(func(s signals.Signal) { hub.Emit(s) }))
	diag := diagnostics.Multi{diagnostics.NewLogSink(logging.Component(logger, "diagnostics")), journal}

	eventLoop := loop.New(256, logging.Component(logger, "loop"))
	clk := clock.New()
	timers := timer.New(clk, eventLoop.Post)
	client := remote.NewClient(cfg.Service.BaseURL(), cfg.Service.Token, cfg.RequestTimeout)

	player := stream.NewPlayer(&http.Client{}, cfg.StreamIdleTimeout, stream.Events{
		Loaded: func(url string) {
			_ = coord.Send(coordinator.StreamLoaded{URL: url})
		},
		Failed: func(url string, err error) {
			_ = coord.Send(coordinator.StreamFailed{URL: url, Err: err})
		},
	}, logging.Component(logger, "player"))
	defer player.Close()

	monitor := stream.NewMonitor(
		stream.Options{StreamURL: cfg.Service.Stream(), MaxAttempts: cfg.ReconnectAttempts, BaseDelay: cfg.RetryDelay},
		player, timers, clk, sink, diag, recorder, logging.Component(logger, "stream"),
	)
	statusPoller := poller.NewStatusPoller(client, eventLoop, monitor.Indicator, clk, sink, diag, recorder, logging.Component(logger, "poller"))
	feedSync := feed.NewSynchronizer(client, eventLoop, clk, sink, diag, recorder, logging.Component(logger, "feed"))

	coord = coordinator.New(coordinator.Options{
		StatusInterval:  cfg.StatusCheckInterval,
		RefreshInterval: cfg.RefreshInterval,
		FeedLimit:       cfg.FeedLimit,
	}, coordinator.Deps{
		Runner:   eventLoop,
		Timers:   timers,
		Clock:    clk,
		Poller:   statusPoller,
		Feed:     feedSync,
		Monitor:  monitor,
		Observer: visibility.NewObserver(cfg.SuspendWhenUnwatched),
		Sink:     sink,
		Metrics:  recorder,
		Logger:   logging.Component(logger, "coordinator"),
	})
	hub = handlers.NewHub(coord, latest, clk, logging.Component(logger, "ws"))

	if bridge != nil {
		if err := bridge.ListenCommands(broker, func(cmd mqttclient.Command) {
			switch cmd {
			case mqttclient.CommandRefresh:
				_ = coord.Send(coordinator.SyncRequested{})
			case mqttclient.CommandReset:
				_ = coord.Send(coordinator.ResetRequested{})
			}
		}); err != nil {
			logger.Warn("mqtt command subscription failed", "err", err)
		}
	}

	api := handlers.New(coord, latest, journal, client, clk, logging.Component(logger, "http"), cfg.FrontendDist)
	router := httpapi.NewRouter(api, hub, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := httpapi.NewServer(cfg.HTTPAddr, router)

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	g.Go(func() error { return eventLoop.Run(loopCtx) })
	g.Go(func() error { return journal.Run(gctx) })
	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.HTTPAddr, "service", cfg.Service.BaseURL(), "stream", cfg.Service.Stream())
		return httpapi.RunServer(gctx, server)
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eventLoop.Call(stopCtx, coord.Stop); err != nil {
			logger.Warn("coordinator stop failed", "err", err)
		}
		stopLoop()
		return nil
	})

	if err := coord.Begin(); err != nil {
		return err
	}
	return g.Wait()
}
