// Package session stores conversation sessions in Redis with a small local
// cache. A session records the chat history and the research runs started from
// it, so reconnecting clients can pick up where they left off.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/metrics"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Message is one chat exchange entry.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the persisted conversation state.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
	// ResearchRuns lists the workflow IDs started from this session, newest
	// last.
	ResearchRuns []string       `json:"research_runs,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Manager persists sessions in Redis and keeps recently used ones in a local
// LRU cache to avoid a round trip per message.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu          sync.RWMutex
	cache       map[string]*Session
	cacheAccess map[string]time.Time
	maxCached   int
}

// NewManager connects to Redis at addr. TTL bounds how long idle sessions
// survive; zero means 24 hours.
func NewManager(addr string, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
	return &Manager{
		client:      client,
		ttl:         ttl,
		logger:      logger,
		cache:       make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
		maxCached:   1000,
	}
}

// Ping verifies Redis connectivity, for readiness checks.
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Create starts a new session.
func (m *Manager) Create(ctx context.Context, userID string) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Context:   make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	m.cachePut(s)
	metrics.SessionsCreated.Inc()
	m.logger.Info("session created", zap.String("session_id", s.ID), zap.String("user_id", userID))
	return s, nil
}

// Get loads a session, preferring the local cache.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	cached := m.cache[id]
	m.mu.RUnlock()
	if cached != nil {
		m.mu.Lock()
		m.cacheAccess[id] = time.Now()
		m.mu.Unlock()
		return cached, nil
	}

	data, err := m.client.Get(ctx, m.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	m.cachePut(&s)
	return &s, nil
}

// AddMessage appends a chat message and persists the session.
func (m *Manager) AddMessage(ctx context.Context, id string, msg Message) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
	if err := m.save(ctx, s); err != nil {
		return err
	}
	m.cachePut(s)
	return nil
}

// AttachResearchRun records a workflow ID started from this session.
func (m *Manager) AttachResearchRun(ctx context.Context, id, workflowID string) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	s.ResearchRuns = append(s.ResearchRuns, workflowID)
	s.UpdatedAt = time.Now()
	if err := m.save(ctx, s); err != nil {
		return err
	}
	m.cachePut(s)
	return nil
}

// Delete removes a session from Redis and the cache.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.client.Del(ctx, m.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.mu.Lock()
	delete(m.cache, id)
	delete(m.cacheAccess, id)
	metrics.SessionCacheSize.Set(float64(len(m.cache)))
	m.mu.Unlock()
	return nil
}

// Close releases the Redis connection pool.
func (m *Manager) Close() error {
	return m.client.Close()
}

func (m *Manager) key(id string) string {
	return "session:" + id
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.client.Set(ctx, m.key(s.ID), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *Manager) cachePut(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[s.ID] = s
	m.cacheAccess[s.ID] = time.Now()
	if len(m.cache) > m.maxCached {
		m.evictOldest()
	}
	metrics.SessionCacheSize.Set(float64(len(m.cache)))
}

// evictOldest drops the least recently used tenth of the cache. Caller holds
// the lock.
func (m *Manager) evictOldest() {
	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(m.cacheAccess))
	for id, at := range m.cacheAccess {
		entries = append(entries, entry{id, at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })

	drop := len(m.cache) / 10
	if drop < 1 {
		drop = 1
	}
	for i := 0; i < drop && i < len(entries); i++ {
		delete(m.cache, entries[i].id)
		delete(m.cacheAccess, entries[i].id)
	}
}
