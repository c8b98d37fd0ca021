package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/dispatchr"
)

// runServe starts the daemon: registry store, schedule loop, history sinks,
// metrics and the HTTP API. It blocks until SIGINT/SIGTERM.
func runServe(parent context.Context, configPath string) error {
	cfg, err := dispatchr.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log := dispatchr.NewLogger(cfg.Log)
	slog.SetDefault(log)

	reg, err := dispatchr.New(cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("failed to open registry store: %w", err)
	}
	defer func() { _ = reg.Close() }()

	var hist dispatchr.HistorySink
	var sinks []dispatchr.HistorySink
	if cfg.History.Enabled {
		if cfg.History.DSN != "" {
			s, err := dispatchr.NewHistorySQLSink(cfg.History.DSN)
			if err != nil {
				return fmt.Errorf("failed to open history sink: %w", err)
			}
			sinks = append(sinks, s)
		}
		if cfg.History.ClickHouseAddr != "" {
			s, err := dispatchr.NewHistoryClickHouseSink(cfg.History.ClickHouseAddr, cfg.History.ClickHouseTable)
			if err != nil {
				return fmt.Errorf("failed to open clickhouse history sink: %w", err)
			}
			sinks = append(sinks, s)
		}
		if len(sinks) > 0 {
			hist = sinks[0]
		}
		if len(sinks) > 1 {
			hist = fanoutSink(sinks)
		}
	}

	if err := dispatchr.RegisterMetricsDefault(); err != nil {
		log.Warn("failed to register metrics", "error", err)
	}
	if cfg.MetricsListen != "" {
		go func() {
			if err := dispatchr.ServeMetrics(cfg.MetricsListen); err != nil {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	disp, err := dispatchr.NewDispatcher(reg, cfg.SourcesDSN, cfg.Timezone, hist)
	if err != nil {
		return fmt.Errorf("failed to wire dispatcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SourcesDSN != "" {
		go disp.Run(ctx, cfg.ScheduleInterval)
	} else {
		log.Info("no sources DSN configured, schedule loop disabled")
	}

	server, err := dispatchr.NewHTTPServer(cfg.Listen, cfg.BasePath, reg, disp, hist)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	log.Info("dispatchr listening", "addr", cfg.Listen, "base_path", cfg.BasePath)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		return server.Close()
	}
	for _, s := range sinks {
		if closer, ok := s.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	return nil
}

// fanoutSink forwards each event to every sink, returning the first error.
type fanoutSink []dispatchr.HistorySink

func (f fanoutSink) Send(ctx context.Context, e dispatchr.HistoryEvent) error {
	var first error
	for _, s := range f {
		if err := s.Send(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
