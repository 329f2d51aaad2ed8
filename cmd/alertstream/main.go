// Command alertstream runs the real-time alert distribution service:
// a WebSocket fan-out endpoint for dashboard clients, a Redis pub/sub
// event bus, threshold monitoring, and multi-channel notification
// delivery.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/enterprisehub/alertstream/internal/alert"
	"github.com/enterprisehub/alertstream/internal/config"
	"github.com/enterprisehub/alertstream/internal/eventbus"
	"github.com/enterprisehub/alertstream/internal/metrics"
	"github.com/enterprisehub/alertstream/internal/monitor"
	"github.com/enterprisehub/alertstream/internal/notify"
	"github.com/enterprisehub/alertstream/internal/shared"
	"github.com/enterprisehub/alertstream/internal/ws"
)

func main() {
	cfg := &config.Config{}
	flag.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "Redis address for pub/sub and metrics")
	flag.StringVar(&cfg.ListenAddr, "listen-addr", ":8765", "HTTP listen address for the WebSocket endpoint")
	flag.StringVar(&cfg.ChannelPrefix, "channel-prefix", "compliance", "Pub/sub channel name prefix")
	flag.StringVar(&cfg.ServiceName, "service-name", "alertstream", "Service name reported in metrics")
	flag.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", 30*time.Second, "WebSocket heartbeat interval")
	flag.IntVar(&cfg.HistoryLimit, "history-limit", 100, "Alert history ring size")
	flag.IntVar(&cfg.QueueSize, "queue-size", 1024, "Notification queue capacity")
	flag.IntVar(&cfg.MaxRetries, "max-retries", 3, "Delivery retry attempts per notification")
	flag.IntVar(&cfg.BatchSize, "batch-size", 10, "Low-priority notification batch size")
	flag.IntVar(&cfg.RateLimit, "rate-limit", 60, "Max sends per channel per rate window")
	flag.DurationVar(&cfg.RateWindow, "rate-window", time.Minute, "Rate limiter window")
	flag.StringVar(&cfg.EmailProvider, "email-provider", "mock", "Email delivery mode: mock, smtp, resend, ses")
	mockProviders := flag.Bool("mock-providers", true, "Log chat/webhook deliveries instead of sending")
	flag.Parse()

	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "DEBUG" || os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("Starting alertstream service",
		"redis_addr", shared.MaskAddr(cfg.RedisAddr),
		"listen_addr", cfg.ListenAddr,
		"channel_prefix", cfg.ChannelPrefix,
		"email_provider", cfg.EmailProvider,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Metrics reporting degrades to in-memory counters when Redis is
	// unreachable; the event bus publisher has its own fallback mode.
	redisClient, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Warn("Redis unreachable at startup, metrics will stay in memory", "error", err)
		redisClient = nil
	}
	collector := metrics.NewCollector(cfg.ServiceName, redisClient)
	collector.Start(ctx)
	defer collector.Stop()

	manager := ws.NewManager(ws.ManagerConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		HistoryLimit:      cfg.HistoryLimit,
	}, collector)
	manager.Start(ctx)
	defer manager.Stop()

	bus := eventbus.NewBus(eventbus.Config{
		ServiceName:   cfg.ServiceName,
		RedisAddr:     cfg.RedisAddr,
		ChannelPrefix: cfg.ChannelPrefix,
	})
	if err := bus.Start(ctx); err != nil {
		slog.Error("Event subscriber could not connect", "error", err)
		os.Exit(1)
	}
	defer bus.Stop()

	notifier := notify.NewService(notify.ServiceConfig{
		MaxRetries: cfg.MaxRetries,
		QueueSize:  cfg.QueueSize,
		BatchSize:  cfg.BatchSize,
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateWindow,
	}, collector)
	notifier.RegisterProvider(notify.NewEmailProvider(notify.EmailConfigFromEnv(cfg.EmailProvider)))
	notifier.RegisterProvider(notify.NewChatProvider(*mockProviders))
	notifier.RegisterProvider(notify.NewWebhookProvider(*mockProviders))
	notifier.StartWorker(ctx)
	defer notifier.StopWorker()

	mon := monitor.NewManager(manager, bus.Publisher, notifier)
	mon.LoadDefaultRules()

	// Incoming bus events from other processes reach dashboards
	// through the fan-out layer.
	handler := rebroadcastHandler(manager, cfg.ServiceName, monitor.EventSource)
	if err := bus.Subscriber.SubscribeAll(ctx, handler); err != nil {
		slog.Error("Failed to subscribe", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: buildMux(manager, notifier, mon, bus),
	}
	go func() {
		slog.Info("WebSocket endpoint listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	if err := bus.Subscriber.StartListening(ctx); err != nil {
		slog.Error("Failed to start event listener", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown", "error", err)
	}
	slog.Info("alertstream service stopped")
}

// rebroadcastHandler forwards bus events to connected dashboard
// clients, skipping events whose source is this process: the monitor
// broadcasts its alerts directly when they trigger, so fanning out the
// bus echo too would show every monitor alert twice.
func rebroadcastHandler(manager *ws.Manager, localSources ...string) eventbus.Handler {
	locals := make(map[string]struct{}, len(localSources))
	for _, s := range localSources {
		locals[s] = struct{}{}
	}
	return func(ctx context.Context, e *alert.Event) error {
		if _, ok := locals[e.Source]; ok {
			return nil
		}
		manager.BroadcastAlert(eventToAlert(e))
		return nil
	}
}

// eventToAlert projects a bus event onto the alert shape dashboard
// clients consume. Severity comes from the payload when present.
func eventToAlert(e *alert.Event) *alert.Alert {
	severity := alert.SeverityMedium
	if s, ok := e.Payload["severity"].(string); ok && s != "" {
		severity = alert.Severity(s)
	}
	title, _ := e.Payload["title"].(string)
	if title == "" {
		title = string(e.Type)
	}
	message, _ := e.Payload["description"].(string)

	a := alert.NewAlert(e.Type, severity, title, message)
	a.ModelID = e.ModelID
	a.ModelName = e.ModelName
	a.Source = e.Source
	a.Timestamp = e.Timestamp
	for k, v := range e.Payload {
		a.Data[k] = v
	}
	return a
}

func buildMux(manager *ws.Manager, notifier *notify.Service, mon *monitor.Manager, bus *eventbus.Bus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", manager.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"connections":   manager.Stats(),
			"notifications": notifier.Stats(),
			"monitoring":    mon.Stats(),
			"eventbus":      bus.Metrics(),
		})
	})
	return mux
}
