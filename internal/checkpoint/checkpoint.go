package checkpoint

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"binlog-router/internal/model"
)

// Store persists binlog positions so a restarted reader resumes where it left off.
type Store interface {
	Save(ctx context.Context, pos model.Position) error
	Load(ctx context.Context) (model.Position, error)
}

// MemoryStore keeps the last position for the lifetime of the process.
type MemoryStore struct {
	mu   sync.Mutex
	last model.Position
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, pos model.Position) error {
	s.mu.Lock()
	s.last = pos
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, nil
}

// Manager throttles saves to at most one per interval; Flush bypasses the throttle.
// It is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	store     Store
	interval  time.Duration
	lastFlush model.Position
	lastTime  time.Time
	logger    *zap.Logger
}

func NewManager(store Store, interval time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, interval: interval, logger: logger}
}

func (m *Manager) MaybeFlush(ctx context.Context, pos model.Position, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos.IsZero() || pos == m.lastFlush {
		return nil
	}
	if m.lastFlush.IsZero() || now.Sub(m.lastTime) >= m.interval {
		return m.save(ctx, pos, now)
	}
	return nil
}

func (m *Manager) Flush(ctx context.Context, pos model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos.IsZero() || pos == m.lastFlush {
		return nil
	}
	return m.save(ctx, pos, time.Now())
}

// Load returns the stored position, or the zero position when none was saved.
func (m *Manager) Load(ctx context.Context) (model.Position, error) {
	return m.store.Load(ctx)
}

func (m *Manager) save(ctx context.Context, pos model.Position, now time.Time) error {
	m.lastFlush = pos
	m.lastTime = now
	m.logger.Debug("saving checkpoint", zap.Stringer("pos", pos))
	return m.store.Save(ctx, pos)
}
