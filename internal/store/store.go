// Package store persists the session transcript: every token a session
// produced, by blink selection or by a manual tap.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicate   = errors.New("transcript entry already stored")
	ErrNotMigrated = errors.New("transcript table missing")
	ErrClosed      = errors.New("store closed")
)

type Source string

const (
	SourceBlink Source = "blink"
	SourceTap   Source = "tap"
)

type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  string    `gorm:"index;not null" json:"session_id"`
	Mode       string    `json:"mode"`
	Token      string    `gorm:"not null" json:"token"`
	Source     Source    `gorm:"size:8" json:"source"`
	GroupIndex int       `json:"group_index"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (Entry) TableName() string { return "transcript_entries" }

type Store interface {
	Append(ctx context.Context, entries []Entry) error
	// List returns a session's entries oldest first. An empty sessionID
	// lists across sessions. limit <= 0 means no limit; otherwise the most
	// recent limit entries are kept.
	List(ctx context.Context, sessionID string, limit int) ([]Entry, error)
	Close() error
}

// Memory is the store used when no database is configured.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	ids     map[uuid.UUID]bool
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{ids: make(map[uuid.UUID]bool)}
}

func (m *Memory) Append(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, e := range entries {
		if m.ids[e.ID] {
			return ErrDuplicate
		}
	}
	for _, e := range entries {
		m.ids[e.ID] = true
		m.entries = append(m.entries, e)
	}
	return nil
}

func (m *Memory) List(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []Entry
	for _, e := range m.entries {
		if sessionID == "" || e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
