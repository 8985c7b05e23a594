package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Key formats
const (
	PrefixUserView      = "dashboard:user:%s:view"
	PrefixAdminOverview = "dashboard:admin:overview"
	PatternAllViews     = "dashboard:*"
)

// DefaultSnapshotTTL bounds staleness when an invalidation is missed
const DefaultSnapshotTTL = 5 * time.Minute

// Backend is a byte-oriented key/value store with TTLs
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// UserViewKey is the cache key of a user's dashboard view
func UserViewKey(userID string) string {
	return fmt.Sprintf(PrefixUserView, userID)
}

// AdminOverviewKey is the cache key of the admin-wide overview
func AdminOverviewKey() string {
	return PrefixAdminOverview
}

// Snapshots stores computed views msgpack-encoded in a Backend.
// A nil *Snapshots is valid and caches nothing.
type Snapshots struct {
	backend Backend
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewSnapshots wraps a backend. ttl <= 0 uses DefaultSnapshotTTL.
func NewSnapshots(backend Backend, ttl time.Duration, logger zerolog.Logger) *Snapshots {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &Snapshots{
		backend: backend,
		ttl:     ttl,
		logger:  logger.With().Str("component", "snapshots").Logger(),
	}
}

// Load decodes the snapshot under key into dest. It reports false on a miss
// or any backend failure; failures are logged, never returned.
func (s *Snapshots) Load(ctx context.Context, key string, dest any) bool {
	if s == nil {
		return false
	}
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) && !errors.Is(err, ErrUnavailable) {
			s.logger.Warn().Err(err).Str("key", key).Msg("Snapshot read failed")
		}
		return false
	}
	if err := msgpack.Unmarshal(data, dest); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Discarding undecodable snapshot")
		_ = s.backend.Delete(ctx, key)
		return false
	}
	return true
}

// Store encodes value under key. Failures are logged.
func (s *Snapshots) Store(ctx context.Context, key string, value any) {
	if s == nil {
		return
	}
	data, err := msgpack.Marshal(value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Snapshot encode failed")
		return
	}
	if err := s.backend.Set(ctx, key, data, s.ttl); err != nil && !errors.Is(err, ErrUnavailable) {
		s.logger.Warn().Err(err).Str("key", key).Msg("Snapshot write failed")
	}
}

// Delete drops the snapshot under key. Failures are logged.
func (s *Snapshots) Delete(ctx context.Context, key string) {
	if s == nil {
		return
	}
	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrUnavailable) {
		s.logger.Warn().Err(err).Str("key", key).Msg("Snapshot delete failed")
	}
}

// InvalidateUser drops a user's view and the admin overview that includes it
func (s *Snapshots) InvalidateUser(ctx context.Context, userID string) {
	if s == nil {
		return
	}
	if err := s.backend.Delete(ctx, UserViewKey(userID), AdminOverviewKey()); err != nil && !errors.Is(err, ErrUnavailable) {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Snapshot invalidation failed")
	}
}

// InvalidateAll drops every dashboard snapshot
func (s *Snapshots) InvalidateAll(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.backend.DeletePattern(ctx, PatternAllViews); err != nil && !errors.Is(err, ErrUnavailable) {
		s.logger.Warn().Err(err).Msg("Snapshot invalidation failed")
	}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Backend used when Redis is disabled
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-process backend
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// DeletePattern supports a single trailing '*' wildcard
func (m *Memory) DeletePattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	for k := range m.entries {
		if (wildcard && strings.HasPrefix(k, prefix)) || k == pattern {
			delete(m.entries, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired or not
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
