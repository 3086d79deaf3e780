// Package ingest manages active ingest connections, coupling SRT byte
// readers with sub-channel metadata, lifecycle signaling, and pipeline
// dispatch.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/dabplus/superframe"
)

// ErrStreamExists is returned by Register when the key is already being
// ingested.
var ErrStreamExists = errors.New("ingest: stream already registered")

// IngestStats captures connection-level metrics for an ingest stream,
// exposed via the stream API for monitoring source health.
type IngestStats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Stream represents an active ingest connection carrying one DAB+
// sub-channel. Bytes written to the internal pipe by the SRT receiver are
// read by the superframe pipeline.
type Stream struct {
	Key       string
	StartedAt time.Time
	Bitrate   int // sub-channel bitrate in kbit/s
	FrameSize int // superframe length in bytes
	pw        io.WriteCloser
	done      chan struct{}

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	remoteAddr    atomic.Value
}

// RecordRead increments the byte and read counters, called by the SRT
// receiver after each successful socket read.
func (s *Stream) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr stores the remote address of the ingest connection for
// diagnostics.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Done is closed once the stream is unregistered.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// IngestStats returns a snapshot of ingest connection metrics.
func (s *Stream) IngestStats() IngestStats {
	addr, _ := s.remoteAddr.Load().(string)
	return IngestStats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Registry tracks active ingest streams by key and dispatches new streams
// to the onStream callback for pipeline setup. It is the rendezvous point
// between the SRT ingest layer and the superframe pipeline.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream

	onStream func(s *Stream, input io.Reader)
}

// NewRegistry creates a Registry. The onStream callback is invoked
// asynchronously whenever a new stream is registered.
func NewRegistry(onStream func(s *Stream, input io.Reader)) *Registry {
	return &Registry{
		streams:  make(map[string]*Stream),
		onStream: onStream,
	}
}

// Register creates a new ingest stream for a sub-channel of the given
// bitrate, returning the Stream and a Writer that the SRT receiver should
// write into. It fails for an invalid bitrate or a key already in use.
func (r *Registry) Register(key string, bitrate int) (*Stream, io.Writer, error) {
	size, err := superframe.SizeForBitrate(bitrate)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	if _, ok := r.streams[key]; ok {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %q", ErrStreamExists, key)
	}
	pr, pw := io.Pipe()
	stream := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		Bitrate:   bitrate,
		FrameSize: size,
		pw:        pw,
		done:      make(chan struct{}),
	}
	r.streams[key] = stream
	r.mu.Unlock()

	if r.onStream != nil {
		go r.onStream(stream, pr)
	}

	return stream, pw, nil
}

// Unregister removes a stream by key, closing its pipe and signaling Done.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	stream, ok := r.streams[key]
	if ok {
		delete(r.streams, key)
	}
	r.mu.Unlock()

	if ok {
		stream.pw.Close()
		close(stream.done)
	}
}

// Get returns the Stream for the given key, or false if not found.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// Exists reports whether key is currently being ingested.
func (r *Registry) Exists(key string) bool {
	_, ok := r.Get(key)
	return ok
}
