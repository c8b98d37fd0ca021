package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/dispatchr/internal/history"
	"github.com/loykin/dispatchr/internal/registry"
)

// setupClickHouseContainer starts a ClickHouse container for testing.
// It skips the test if Docker is unavailable.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start ClickHouse container: %v", err)
	}

	host, err := clickHouseContainer.Host(ctx)
	if err != nil {
		_ = clickHouseContainer.Terminate(ctx)
		t.Skipf("Failed to get container host: %v", err)
	}

	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	if err != nil {
		_ = clickHouseContainer.Terminate(ctx)
		t.Skipf("Failed to get mapped port: %v", err)
	}

	return clickHouseContainer, host + ":" + port.Port()
}

func setupSinkWithTable(ctx context.Context, t *testing.T, addr, tableName string) *Sink {
	t.Helper()

	sink, err := New(addr, tableName)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}

	err = sink.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+tableName+` (
			event String,
			occurred_at DateTime64(3),
			uuid String,
			source_id UInt32,
			state String,
			prev_state String,
			type UInt8,
			created_at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, uuid)
	`)
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	return sink
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	clickHouseContainer, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := clickHouseContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink := setupSinkWithTable(ctx, t, addr, "dispatch_history")
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	rec := registry.ProcessRecord{
		ID:        uuid.NewString(),
		SourceID:  42,
		State:     registry.StatePending,
		Kind:      registry.KindRegular,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	createEvent := history.Event{
		Type:       history.EventCreate,
		OccurredAt: time.Now().UTC(),
		Record:     rec,
	}
	if err := sink.Send(ctx, createEvent); err != nil {
		t.Fatalf("Failed to send create event: %v", err)
	}

	rec.State = registry.StateRunning
	transitionEvent := history.Event{
		Type:       history.EventTransition,
		OccurredAt: time.Now().UTC(),
		Record:     rec,
		From:       registry.StatePending,
	}
	if err := sink.Send(ctx, transitionEvent); err != nil {
		t.Fatalf("Failed to send transition event: %v", err)
	}

	// Wait a moment for data to be written
	time.Sleep(100 * time.Millisecond)

	row := sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM dispatch_history WHERE uuid = ?", rec.ID)
	var count uint64
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to query count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events, got %d", count)
	}
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	_, err := New("invalid-host:9000", "test_table")
	if err == nil {
		t.Error("Expected error with invalid connection, got nil")
	}
}
