package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func entry(session, token string, at time.Duration) Entry {
	return Entry{
		ID:        uuid.New(),
		SessionID: session,
		Token:     token,
		Source:    SourceBlink,
		CreatedAt: t0.Add(at),
	}
}

func TestMemory_ListOrderAndLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, []Entry{entry("a", "H", 2*time.Second), entry("a", "E", 3*time.Second)}))
	require.NoError(t, m.Append(ctx, []Entry{entry("b", "X", time.Second), entry("a", "Y", time.Second)}))

	got, err := m.List(ctx, "a", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Y", "H", "E"}, tokens(got))

	got, err = m.List(ctx, "a", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"H", "E"}, tokens(got), "limit keeps the most recent")

	got, err = m.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestMemory_DuplicateIsAtomic(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	e := entry("a", "H", 0)
	require.NoError(t, m.Append(ctx, []Entry{e}))

	err := m.Append(ctx, []Entry{entry("a", "I", time.Second), e})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, _ := m.List(ctx, "a", 0)
	assert.Len(t, got, 1)
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Append(context.Background(), []Entry{entry("a", "H", 0)}), ErrClosed)
}

// countingStore records every Append batch size.
type countingStore struct {
	*Memory
	mu      sync.Mutex
	batches []int
}

func (c *countingStore) Append(ctx context.Context, entries []Entry) error {
	c.mu.Lock()
	c.batches = append(c.batches, len(entries))
	c.mu.Unlock()
	return c.Memory.Append(ctx, entries)
}

func TestAsync_CloseFlushes(t *testing.T) {
	cs := &countingStore{Memory: NewMemory()}
	a := NewAsync(cs, AsyncConfig{BatchSize: 100, FlushInterval: time.Hour}, zaptest.NewLogger(t))

	for i, tok := range []string{"H", "E", "L", "L", "O"} {
		a.Record(entry("s", tok, time.Duration(i)*time.Second))
	}
	require.NoError(t, a.Close())

	got, err := cs.List(context.Background(), "s", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"H", "E", "L", "L", "O"}, tokens(got))
}

func TestAsync_FlushesFullBatch(t *testing.T) {
	cs := &countingStore{Memory: NewMemory()}
	a := NewAsync(cs, AsyncConfig{BatchSize: 2, FlushInterval: time.Hour}, zaptest.NewLogger(t))
	defer a.Close()

	a.Record(entry("s", "A", 0))
	a.Record(entry("s", "B", time.Second))

	assert.Eventually(t, func() bool {
		got, _ := cs.List(context.Background(), "s", 0)
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestAsync_RecordAfterCloseDoesNotBlock(t *testing.T) {
	a := NewAsync(NewMemory(), AsyncConfig{}, zaptest.NewLogger(t))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	done := make(chan struct{})
	go func() {
		a.Record(entry("s", "A", 0))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked after Close")
	}
}

func TestClassify(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "transcript_entries_pkey"}
	assert.ErrorIs(t, classify(fmt.Errorf("insert: %w", dup)), ErrDuplicate)

	missing := &pgconn.PgError{Code: "42P01", Message: `relation "transcript_entries" does not exist`}
	assert.ErrorIs(t, classify(missing), ErrNotMigrated)

	other := errors.New("boom")
	assert.Equal(t, other, classify(other))
}

func TestPostgres_ListQuery(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 user=netra dbname=netra sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               NewGormLogger(zaptest.NewLogger(t), 0),
	})
	require.NoError(t, err)

	p := NewPostgres(db, zaptest.NewLogger(t))
	var out []Entry
	stmt := p.listQuery(context.Background(), "sess-1", 50).Find(&out).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, `FROM "transcript_entries"`)
	assert.Contains(t, sql, "session_id = $1")
	assert.Contains(t, sql, "ORDER BY created_at DESC")
	assert.Contains(t, stmt.Vars, "sess-1")
}

func tokens(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Token
	}
	return out
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), 100*time.Millisecond)
	ctx := context.Background()
	query := func() (string, int64) { return `SELECT * FROM "transcript_entries"`, 3 }

	l.Trace(ctx, time.Now(), query, nil)
	assert.Zero(t, logs.Len(), "fast queries are quiet at the default level")

	l.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "not found is not an error")

	l.Trace(ctx, time.Now(), query, errors.New("connection refused"))
	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)

	entries := logs.TakeAll()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, `SELECT * FROM "transcript_entries"`, entries[0].ContextMap()["sql"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "slow query", entries[1].Message)

	l.LogMode(gormlogger.Info).Trace(ctx, time.Now(), query, nil)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)

	l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), query, errors.New("boom"))
	assert.Equal(t, 1, logs.Len())
}
