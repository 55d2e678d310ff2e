package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mkessler/quern/internal/config"
	"github.com/mkessler/quern/internal/events"
)

// Reason classifies why a session record was evicted.
type Reason string

const (
	ReasonCapacity Reason = "capacity"
	ReasonTimeout  Reason = "timeout"
	ReasonRemoved  Reason = "removed"
)

// Record is the per-client session bookkeeping entry.
type Record struct {
	SessionID      string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	RequestCount   int       `json:"request_count"`
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	ActiveSessions int   `json:"active_sessions"`
	MaxSessions    int   `json:"max_sessions"`
	TotalCreated   int64 `json:"total_created"`
	TotalEvicted   int64 `json:"total_evicted"`
}

// Manager tracks per-client session records under an LRU-plus-TTL policy.
// The live set never exceeds MaxSessions: creating a record at capacity
// evicts the least-recently-used one first, and a periodic sweep evicts
// records idle longer than the session timeout.
type Manager struct {
	mu      sync.Mutex
	records map[string]*Record
	// order is the explicit recency sequence, least-recently-used first.
	// It is the sole source of truth for capacity eviction; wall-clock
	// comparison is only a fallback when it is empty.
	order []string

	maxSessions  int
	timeout      time.Duration
	sweepEvery   time.Duration
	totalCreated int64
	totalEvicted int64

	hub    *events.Hub
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a session manager. Call Start to begin the expiry sweep.
func NewManager(cfg config.SessionsConfig, hub *events.Hub, logger *slog.Logger) *Manager {
	return &Manager{
		records:     make(map[string]*Record),
		maxSessions: cfg.MaxSessions,
		timeout:     cfg.SessionTimeout,
		sweepEvery:  cfg.SweepInterval,
		hub:         hub,
		logger:      logger.With("component", "sessions"),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the periodic expiry sweep.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep(time.Now())
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop halts the sweep loop.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// GetOrCreate returns the record for id, creating it if unknown. Known
// records have their request counter incremented, their activity refreshed,
// and are promoted to most-recently-used. Creating at capacity evicts the
// current least-recently-used record first.
func (m *Manager) GetOrCreate(id string) Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if rec, ok := m.records[id]; ok {
		rec.RequestCount++
		rec.LastActivityAt = now
		m.promoteLocked(id)
		return *rec
	}

	if len(m.records) >= m.maxSessions {
		if victim := m.lruVictimLocked(); victim != "" {
			m.evictLocked(victim, ReasonCapacity)
		}
	}

	rec := &Record{
		SessionID:      id,
		CreatedAt:      now,
		LastActivityAt: now,
		RequestCount:   1,
	}
	m.records[id] = rec
	m.order = append(m.order, id)
	m.totalCreated++

	m.logger.Debug("session created", "session_id", id)
	if m.hub != nil {
		m.hub.Publish(events.TypeSessionCreated, rec)
	}
	return *rec
}

// Touch refreshes activity and recency for a known session. It reports
// whether the session existed.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return false
	}
	rec.LastActivityAt = time.Now()
	m.promoteLocked(id)
	return true
}

// Remove explicitly evicts a session. It reports whether the session existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return false
	}
	m.evictLocked(id, ReasonRemoved)
	return true
}

// IsValid reports whether the session exists and its idle time is within the
// session timeout. Read-only: it does not touch recency.
func (m *Manager) IsValid(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return false
	}
	return time.Since(rec.LastActivityAt) <= m.timeout
}

// List returns all records, most-recently-used last.
func (m *Manager) List() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		if rec, ok := m.records[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

// Stats returns a consistent snapshot of manager counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		ActiveSessions: len(m.records),
		MaxSessions:    m.maxSessions,
		TotalCreated:   m.totalCreated,
		TotalEvicted:   m.totalEvicted,
	}
}

// sweep evicts every record whose idle time exceeds the session timeout.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	for id, rec := range m.records {
		if now.Sub(rec.LastActivityAt) > m.timeout {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		m.evictLocked(id, ReasonTimeout)
	}
}

// promoteLocked moves id to the most-recently-used end of the order.
func (m *Manager) promoteLocked(id string) {
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.order = append(m.order, id)
}

// lruVictimLocked picks the eviction victim: the head of the explicit
// recency order, falling back to the oldest activity timestamp only when the
// order is empty.
func (m *Manager) lruVictimLocked() string {
	if len(m.order) > 0 {
		return m.order[0]
	}

	var victim string
	var oldest time.Time
	for id, rec := range m.records {
		if victim == "" || rec.LastActivityAt.Before(oldest) {
			victim = id
			oldest = rec.LastActivityAt
		}
	}
	return victim
}

type evictionNotice struct {
	Record Record `json:"record"`
	Reason Reason `json:"reason"`
}

func (m *Manager) evictLocked(id string, reason Reason) {
	rec, ok := m.records[id]
	if !ok {
		return
	}
	delete(m.records, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.totalEvicted++

	m.logger.Info("session evicted", "session_id", id, "reason", string(reason))
	if m.hub != nil {
		m.hub.Publish(events.TypeSessionEvicted, evictionNotice{Record: *rec, Reason: reason})
	}
}
