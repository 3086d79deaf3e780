package distribution

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zsiec/dabplus/media"
)

// Listener is the interface an ADTS listener session must implement to
// receive frames from a Relay.
type Listener interface {
	ID() string
	SendAudio(frame *media.AudioFrame)
	Stats() ListenerStats
}

// AudioInfo holds the audio configuration of a stream, derived from the
// most recent superframe header.
type AudioInfo struct {
	Codec          string
	SampleRate     int // output rate after SBR
	CoreSampleRate int // AAC core rate carried in the ADTS header
	Channels       int
	SBR            bool
	PS             bool
	Surround       string
}

// audioCacheSize is the number of recent ADTS frames cached for replay to
// late-joining listeners (about 1.2 s at six access units per superframe).
const audioCacheSize = 60

// Relay is the fan-out hub for a single stream. It distributes ADTS frames
// from the pipeline to all connected listeners and caches the most recent
// frames so a new listener's decoder can start without waiting.
type Relay struct {
	log            *slog.Logger
	mu             sync.RWMutex
	listeners      map[string]Listener
	audioInfo      AudioInfo
	audioInfoSet   bool
	audioInfoReady chan struct{}
	done           chan struct{}
	closeOnce      sync.Once

	cacheMu    sync.RWMutex
	audioCache []*media.AudioFrame
}

// NewRelay creates a Relay with no listeners.
func NewRelay() *Relay {
	return &Relay{
		log:            slog.With("component", "relay"),
		listeners:      make(map[string]Listener),
		audioInfoReady: make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Close marks the stream as ended. Listeners still attached see Done
// close and finish their responses.
func (r *Relay) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// Done is closed when the relay's stream has ended.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// SetAudioInfo stores the stream's audio configuration. Unlike a fixed
// codec probe it may be called again when the broadcaster reconfigures
// the sub-channel.
func (r *Relay) SetAudioInfo(info AudioInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.audioInfoSet && r.audioInfo == info {
		return
	}
	r.audioInfo = info
	if !r.audioInfoSet {
		r.audioInfoSet = true
		close(r.audioInfoReady)
	}
	r.log.Debug("audio info set",
		"codec", info.Codec,
		"sampleRate", info.SampleRate,
		"coreSampleRate", info.CoreSampleRate,
		"channels", info.Channels)
}

// AudioInfo returns the current audio configuration and whether any
// superframe has been decoded yet.
func (r *Relay) AudioInfo() (AudioInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audioInfo, r.audioInfoSet
}

// WaitAudioInfo blocks until the audio configuration is known, or until
// ctx is cancelled. Returns true if info is ready.
func (r *Relay) WaitAudioInfo(ctx context.Context) bool {
	select {
	case <-r.audioInfoReady:
		return true
	case <-r.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// AddListener replays the cached frames to the listener, then registers
// it for live delivery. Replay happens under the cache lock so that
// BroadcastAudio cannot interleave a live frame before the replay ends.
func (r *Relay) AddListener(l Listener) {
	r.cacheMu.RLock()
	for _, frame := range r.audioCache {
		l.SendAudio(frame)
	}
	r.mu.Lock()
	r.listeners[l.ID()] = l
	n := len(r.listeners)
	r.mu.Unlock()
	r.cacheMu.RUnlock()

	r.log.Info("listener added", "session", l.ID(), "listeners", n)
}

// RemoveListener unregisters a listener by ID.
func (r *Relay) RemoveListener(id string) {
	r.mu.Lock()
	delete(r.listeners, id)
	n := len(r.listeners)
	r.mu.Unlock()

	r.log.Info("listener removed", "session", id, "listeners", n)
}

// BroadcastAudio sends a frame to all connected listeners and appends it
// to the replay cache.
func (r *Relay) BroadcastAudio(frame *media.AudioFrame) {
	r.cacheMu.Lock()
	if len(r.audioCache) >= audioCacheSize {
		copy(r.audioCache, r.audioCache[1:])
		r.audioCache[len(r.audioCache)-1] = frame
	} else {
		r.audioCache = append(r.audioCache, frame)
	}

	r.mu.RLock()
	for _, l := range r.listeners {
		l.SendAudio(frame)
	}
	r.mu.RUnlock()
	r.cacheMu.Unlock()
}

// ListenerCount returns the number of currently connected listeners.
func (r *Relay) ListenerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// ListenerStatsAll returns delivery metrics for every connected listener.
func (r *Relay) ListenerStatsAll() []ListenerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make([]ListenerStats, 0, len(r.listeners))
	for _, l := range r.listeners {
		stats = append(stats, l.Stats())
	}
	return stats
}
