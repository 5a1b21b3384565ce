package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/backoff"
	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/engine"
	"github.com/xraph/postmaster/message"
	"github.com/xraph/postmaster/store/memory"
	"github.com/xraph/postmaster/transport"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sink struct {
	mu   sync.Mutex
	sent []string
}

func (s *sink) Send(_ context.Context, m *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, string(m.Payload))
	return nil
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func enabled() postmaster.Config {
	cfg := postmaster.DefaultConfig()
	cfg.Enabled = true
	cfg.PriorityLevels = 3
	cfg.Dispatch.MoveInterval = 5 * time.Millisecond
	return cfg
}

func withPersistence(cfg postmaster.Config) postmaster.Config {
	p := postmaster.DefaultPersistenceConfig()
	p.Enabled = true
	p.DesiredBatchSize = 2
	p.MinKeptInMemory = 1
	p.MaxKeptInMemory = 4
	cfg.Persistence = p
	return cfg
}

func build(t *testing.T, cfg postmaster.Config, tr transport.Transport, opts ...engine.Option) *engine.Engine {
	t.Helper()
	opts = append([]engine.Option{
		engine.WithLogger(discard()),
		engine.WithBackoff(backoff.Constant(time.Millisecond)),
	}, opts...)
	eng, err := engine.Build(context.Background(), cfg, tr, opts...)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})
	return eng
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// ──────────────────────────────────────────────────
// Build
// ──────────────────────────────────────────────────

func TestBuild_Disabled(t *testing.T) {
	_, err := engine.Build(context.Background(), postmaster.DefaultConfig(), transport.Discard)
	if !errors.Is(err, postmaster.ErrDisabled) {
		t.Errorf("err = %v, want %v", err, postmaster.ErrDisabled)
	}
}

func TestBuild_InvalidConfiguration(t *testing.T) {
	cfg := withPersistence(enabled())
	cfg.Persistence.MinKeptInMemory = 10
	_, err := engine.Build(context.Background(), cfg, transport.Discard, engine.WithLogger(discard()))
	if !errors.Is(err, postmaster.ErrInvalidConfiguration) {
		t.Errorf("err = %v, want %v", err, postmaster.ErrInvalidConfiguration)
	}
}

func TestBuild_InvalidPurgeSchedule(t *testing.T) {
	cfg := enabled()
	cfg.Persistence = nil
	cfg.DLQ.PurgeSchedule = "every tuesday"
	_, err := engine.Build(context.Background(), cfg, transport.Discard, engine.WithLogger(discard()))
	if !errors.Is(err, postmaster.ErrInvalidConfiguration) {
		t.Errorf("err = %v, want %v", err, postmaster.ErrInvalidConfiguration)
	}
}

func TestBuild_UnknownRedisSetting(t *testing.T) {
	cfg := withPersistence(enabled())
	cfg.Persistence.Redis.Enabled = true
	cfg.Persistence.Redis.Settings = map[string]string{"pool_size": "many"}
	_, err := engine.Build(context.Background(), cfg, transport.Discard, engine.WithLogger(discard()))
	if !errors.Is(err, postmaster.ErrInvalidConfiguration) {
		t.Errorf("err = %v, want %v", err, postmaster.ErrInvalidConfiguration)
	}
}

// ──────────────────────────────────────────────────
// Modes
// ──────────────────────────────────────────────────

func TestStart_RetentionFailureStopsScheduler(t *testing.T) {
	cfg := enabled()
	cfg.Persistence = nil
	eng, err := engine.Build(context.Background(), cfg, transport.Discard, engine.WithLogger(discard()))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	boom := errors.New("cron unavailable")
	engine.SetSweeper(eng, engine.SweeperFuncs{
		StartFn: func(context.Context) error { return boom },
	})

	if err := eng.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Start err = %v, want %v", err, boom)
	}
	if _, err := eng.Enqueue(context.Background(), []byte("x"), 0); !errors.Is(err, postmaster.ErrSchedulerStopped) {
		t.Errorf("Enqueue after failed Start = %v, want %v", err, postmaster.ErrSchedulerStopped)
	}
}

func TestEngine_MemoryOnly(t *testing.T) {
	cfg := enabled()
	cfg.Persistence = nil
	tr := &sink{}
	eng := build(t, cfg, tr)

	if eng.Mode() != postmaster.ModeMemoryOnly {
		t.Errorf("mode = %v, want %v", eng.Mode(), postmaster.ModeMemoryOnly)
	}
	if eng.Scheduler().Persistent() {
		t.Error("memory-only scheduler should not spill")
	}
	if _, err := eng.Enqueue(context.Background(), []byte("hello"), 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, "delivery", func() bool { return tr.count() == 1 })
}

func TestEngine_PersistentLocalSQLite(t *testing.T) {
	cfg := withPersistence(enabled())
	cfg.Persistence.SQL.DSN = "file:" + filepath.Join(t.TempDir(), "postmaster.db")
	tr := &sink{}
	eng := build(t, cfg, tr)

	if eng.Mode() != postmaster.ModePersistentLocal {
		t.Errorf("mode = %v, want %v", eng.Mode(), postmaster.ModePersistentLocal)
	}
	for i := range 10 {
		if _, err := eng.Enqueue(context.Background(), []byte(strconv.Itoa(i)), i%3); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	waitFor(t, "10 deliveries", func() bool { return tr.count() == 10 })
	if err := eng.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestEngine_EmbeddedRedisUsesSQLite(t *testing.T) {
	cfg := withPersistence(enabled())
	cfg.Persistence.Redis.Enabled = true
	cfg.Persistence.Redis.Embedded = true
	cfg.Persistence.SQL.DSN = "file:" + filepath.Join(t.TempDir(), "embedded.db")
	eng := build(t, cfg, &sink{})

	if eng.Mode() != postmaster.ModePersistentLocal {
		t.Errorf("mode = %v, want %v", eng.Mode(), postmaster.ModePersistentLocal)
	}
}

func TestEngine_PersistentRemoteRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("port: %v", err)
	}

	cfg := withPersistence(enabled())
	cfg.Persistence.Redis = postmaster.RedisConfig{
		Enabled:  true,
		Host:     mr.Host(),
		Port:     port,
		Settings: map[string]string{"pool_size": "4", "dial_timeout": "1s"},
	}

	// Fill the store with a stopped engine, then drain it with a fresh one.
	first, err := engine.Build(context.Background(), cfg, transport.Func(func(ctx context.Context, _ *message.Message) error {
		<-ctx.Done()
		return ctx.Err()
	}), engine.WithLogger(discard()))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	if first.Mode() != postmaster.ModePersistentRemote {
		t.Errorf("mode = %v, want %v", first.Mode(), postmaster.ModePersistentRemote)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := range 8 {
		if _, err := first.Enqueue(context.Background(), []byte(strconv.Itoa(i)), 0); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := first.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	tr := &sink{}
	second := build(t, cfg, tr)
	waitFor(t, "8 deliveries", func() bool { return tr.count() == 8 })
	if st := second.Stats(); st.Outstanding() != 0 {
		t.Errorf("outstanding = %d, want 0", st.Outstanding())
	}
}

// ──────────────────────────────────────────────────
// Dead letters
// ──────────────────────────────────────────────────

func TestEngine_DeadLetterAndReplay(t *testing.T) {
	cfg := enabled()
	cfg.Persistence = nil
	store := memory.New()

	var calls atomic.Int32
	tr := &sink{}
	flaky := transport.Func(func(ctx context.Context, m *message.Message) error {
		if calls.Add(1) == 1 {
			return transport.Permanent(errors.New("550 no such user"))
		}
		return tr.Send(ctx, m)
	})
	eng := build(t, cfg, flaky, engine.WithStore(store))

	if _, err := eng.Enqueue(context.Background(), []byte("bounce"), 2); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, "dlq entry", func() bool {
		n, _ := store.CountDLQ(context.Background())
		return n == 1
	})

	entries, err := eng.DLQService().DLQStore().ListDLQ(context.Background(), dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	m, err := eng.DLQService().Replay(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if m.Priority != 2 || m.Attempts != 0 {
		t.Errorf("replayed = %+v, want priority 2 and zero attempts", m)
	}
	waitFor(t, "replayed delivery", func() bool { return tr.count() == 1 })
}

// ──────────────────────────────────────────────────
// Observability
// ──────────────────────────────────────────────────

func TestEngine_MeterProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	cfg := enabled()
	cfg.Persistence = nil
	tr := &sink{}
	eng := build(t, cfg, tr, engine.WithMeterProvider(mp))

	for i := range 3 {
		if _, err := eng.Enqueue(context.Background(), []byte("x"), i); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	waitFor(t, "3 deliveries", func() bool { return tr.count() == 3 })

	// Hooks fire after the transport returns.
	waitFor(t, "delivered counter", func() bool {
		return sumCounter(t, reader, "postmaster.message.delivered") == 3
	})
	if got := sumCounter(t, reader, "postmaster.message.enqueued"); got != 3 {
		t.Errorf("enqueued = %d, want 3", got)
	}
	if got := sumCounter(t, reader, "postmaster.send.attempts"); got != 3 {
		t.Errorf("send attempts = %d, want 3", got)
	}
}

func sumCounter(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
