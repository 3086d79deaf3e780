// Package stream tracks the lifecycle of live DAB+ services, providing
// create/remove/list operations used by the ingest and distribution layers.
package stream

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zsiec/dabplus/internal/metrics"
)

// Stream is one live sub-channel being decoded.
type Stream struct {
	Key       string
	Bitrate   int // kbit/s
	StartedAt time.Time
	done      chan struct{}
}

// Done is closed when the stream is removed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Manager manages the lifecycle of active streams.
type Manager struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewManager creates a new stream manager. If log is nil, slog.Default()
// is used; m may be nil.
func NewManager(log *slog.Logger, m *metrics.Metrics) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log.With("component", "stream-manager"),
		metrics: m,
		streams: make(map[string]*Stream),
	}
}

// Create registers a new stream. Returns the stream and true if created,
// or nil and false if a stream with this key already exists.
func (m *Manager) Create(key string, bitrate int) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[key]; ok {
		m.log.Warn("stream already exists, rejecting duplicate", "key", key)
		return nil, false
	}

	s := &Stream{
		Key:       key,
		Bitrate:   bitrate,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}

	m.streams[key] = s
	if m.metrics != nil {
		m.metrics.ActiveStreams.Set(float64(len(m.streams)))
	}
	m.log.Info("stream created", "key", key, "bitrate", bitrate)
	return s, true
}

// Remove removes a stream from the manager and drops its metric series.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.streams[key]
	if ok {
		delete(m.streams, key)
		if m.metrics != nil {
			m.metrics.ActiveStreams.Set(float64(len(m.streams)))
		}
	}
	m.mu.Unlock()

	if ok {
		close(s.done)
		if m.metrics != nil {
			m.metrics.Forget(key)
		}
		m.log.Info("stream removed", "key", key, "uptime", time.Since(s.StartedAt).Round(time.Second))
	}
}

// Get returns the stream for key, or false if there is none.
func (m *Manager) Get(key string) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[key]
	return s, ok
}

// List returns all active streams ordered by key.
func (m *Manager) List() []*Stream {
	m.mu.RLock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.RUnlock()

	sort.Slice(streams, func(i, j int) bool { return streams[i].Key < streams[j].Key })
	return streams
}
