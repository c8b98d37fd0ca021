package dispatchr

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/dispatchr/internal/config"
	"github.com/loykin/dispatchr/internal/dispatcher"
	"github.com/loykin/dispatchr/internal/history"
	chsink "github.com/loykin/dispatchr/internal/history/clickhouse"
	"github.com/loykin/dispatchr/internal/logger"
	"github.com/loykin/dispatchr/internal/metrics"
	"github.com/loykin/dispatchr/internal/registry"
	iapi "github.com/loykin/dispatchr/internal/server"
	"github.com/loykin/dispatchr/internal/source"
	"github.com/loykin/dispatchr/internal/store"
	"github.com/loykin/dispatchr/internal/store/factory"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type ProcessRecord = registry.ProcessRecord

type State = registry.State

type Kind = registry.Kind

const (
	StatePending   = registry.StatePending
	StateRunning   = registry.StateRunning
	StateSuspended = registry.StateSuspended
	StateCompleted = registry.StateCompleted
	StateFailed    = registry.StateFailed
	StateCancelled = registry.StateCancelled

	KindRegular = registry.KindRegular
	KindSandbox = registry.KindSandbox
)

var (
	ErrUnknownState      = registry.ErrUnknownState
	ErrIllegalTransition = registry.ErrIllegalTransition
	ErrNotFound          = store.ErrNotFound
	ErrConflict          = store.ErrConflict
)

type Config = cfg.Config

type HistoryConfig = cfg.HistoryConfig

type HistorySink = history.Sink

type HistoryEvent = history.Event

type AssignedProcess = dispatcher.AssignedProcess

// Registry is a thin facade over the internal store and source binding.
// It provides a stable public API for embedding.
type Registry struct {
	st      store.Store
	binding *source.Binding
}

// New opens a registry backed by the store the DSN selects (postgres or
// sqlite) and ensures the schema exists.
func New(dsn string) (*Registry, error) {
	st, err := factory.NewFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return &Registry{st: st, binding: source.NewBinding(st)}, nil
}

// NewMemory returns a registry backed by an in-memory store. Intended for
// tests and embedding experiments.
func NewMemory() *Registry {
	st := store.NewMemory()
	return &Registry{st: st, binding: source.NewBinding(st)}
}

func (r *Registry) Store() store.Store { return r.st }

func (r *Registry) Create(ctx context.Context, sourceID uint32, kind Kind) (ProcessRecord, error) {
	return r.st.Create(ctx, sourceID, kind)
}

func (r *Registry) Get(ctx context.Context, id string) (ProcessRecord, error) {
	return r.st.Get(ctx, id)
}

func (r *Registry) UpdateState(ctx context.Context, id string, target State) (ProcessRecord, error) {
	return r.st.UpdateState(ctx, id, target)
}

func (r *Registry) ListBySource(ctx context.Context, sourceID uint32) ([]ProcessRecord, error) {
	return r.st.ListBySource(ctx, sourceID)
}

// RecordsForSource returns a one-shot sequence over a source's records.
func (r *Registry) RecordsForSource(ctx context.Context, sourceID uint32) (iter.Seq[ProcessRecord], error) {
	return r.binding.RecordsForSource(ctx, sourceID)
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.st.Delete(ctx, id)
}

func (r *Registry) Close() error { return r.st.Close() }

// Dispatcher facade

type Dispatcher struct{ inner *dispatcher.Dispatcher }

// NewDispatcher wires a dispatcher over the registry. sourcesDSN may be
// empty; the schedule loop then stays disabled and only Assign works.
func NewDispatcher(r *Registry, sourcesDSN, timezone string, hist HistorySink) (*Dispatcher, error) {
	dcfg := dispatcher.Config{Store: r.st, Timezone: timezone, History: hist}
	if sourcesDSN != "" {
		cat, err := source.OpenCatalog(sourcesDSN)
		if err != nil {
			return nil, err
		}
		dcfg.Sources = cat
	}
	d, err := dispatcher.New(dcfg)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{inner: d}, nil
}

func (d *Dispatcher) PrepareSchedule(ctx context.Context) error {
	return d.inner.PrepareSchedule(ctx)
}

func (d *Dispatcher) Assign(ctx context.Context, supervisorID uuid.UUID) (*AssignedProcess, error) {
	return d.inner.Assign(ctx, supervisorID)
}

func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	d.inner.Run(ctx, interval)
}

func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

type LogConfig = logger.Config

// NewLogger builds the configured slog logger.
func NewLogger(c LogConfig) *slog.Logger { return logger.New(c) }

// NewHTTPServer starts an HTTP server exposing the registry API.
func NewHTTPServer(addr, basePath string, r *Registry, d *Dispatcher, hist HistorySink) (*http.Server, error) {
	var inner *dispatcher.Dispatcher
	if d != nil {
		inner = d.inner
	}
	return iapi.NewServer(addr, iapi.NewRouter(r.st, inner, hist, basePath))
}

// NewHistorySQLSink opens the SQL history sink for the given DSN.
func NewHistorySQLSink(dsn string) (HistorySink, error) {
	return history.NewSQLSinkFromDSN(dsn)
}

// NewHistoryClickHouseSink opens the ClickHouse history sink.
func NewHistoryClickHouseSink(addr, table string) (HistorySink, error) {
	return chsink.New(addr, table)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
