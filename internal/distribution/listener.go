package distribution

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/zsiec/dabplus/internal/metrics"
	"github.com/zsiec/dabplus/media"
)

var listenerSeq atomic.Uint64

// httpListener streams ADTS frames to one HTTP client. The relay hands it
// frames through SendAudio, which never blocks: when the client falls
// behind, frames are dropped. Each ADTS frame stands alone, so a decoder
// picks up again at the next header.
type httpListener struct {
	id          string
	remote      string
	protocol    string
	streamKey   string
	connectedAt time.Time
	frames      chan *media.AudioFrame
	metrics     *metrics.Metrics

	sent    atomic.Int64
	dropped atomic.Int64
	bytes   atomic.Int64
	lastPTS atomic.Int64
}

func newHTTPListener(streamKey string, r *http.Request, m *metrics.Metrics) *httpListener {
	return &httpListener{
		id:          fmt.Sprintf("%s-%d", streamKey, listenerSeq.Add(1)),
		remote:      r.RemoteAddr,
		protocol:    r.Proto,
		streamKey:   streamKey,
		connectedAt: time.Now(),
		frames:      make(chan *media.AudioFrame, media.AudioBufferSize),
		metrics:     m,
	}
}

func (l *httpListener) ID() string { return l.id }

func (l *httpListener) SendAudio(frame *media.AudioFrame) {
	select {
	case l.frames <- frame:
	default:
		l.dropped.Add(1)
		if l.metrics != nil {
			l.metrics.FramesDropped.WithLabelValues(l.streamKey).Inc()
		}
	}
}

func (l *httpListener) Stats() ListenerStats {
	return ListenerStats{
		ID:          l.id,
		Remote:      l.remote,
		Protocol:    l.protocol,
		FramesSent:  l.sent.Load(),
		FramesDrop:  l.dropped.Load(),
		BytesSent:   l.bytes.Load(),
		LastPTS:     l.lastPTS.Load(),
		ConnectedAt: l.connectedAt.UnixMilli(),
	}
}

// serve copies queued frames to w until ctx ends, the stream ends or a
// write fails. When the stream ends, frames already queued are written
// before it returns.
func (l *httpListener) serve(ctx context.Context, done <-chan struct{}, w http.ResponseWriter) error {
	rc := http.NewResponseController(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return l.drain(w, rc)
		case frame := <-l.frames:
			if err := l.write(w, frame); err != nil {
				return err
			}

			// Batch writes while the queue is non-empty, flush once idle.
			if len(l.frames) > 0 {
				continue
			}
			if err := rc.Flush(); err != nil {
				return err
			}
		}
	}
}

func (l *httpListener) write(w http.ResponseWriter, frame *media.AudioFrame) error {
	n, err := w.Write(frame.Data)
	if err != nil {
		return err
	}
	l.sent.Add(1)
	l.bytes.Add(int64(n))
	l.lastPTS.Store(frame.PTS)
	return nil
}

// drain writes whatever is still queued without waiting for more.
func (l *httpListener) drain(w http.ResponseWriter, rc *http.ResponseController) error {
	for {
		select {
		case frame := <-l.frames:
			if err := l.write(w, frame); err != nil {
				return err
			}
		default:
			return rc.Flush()
		}
	}
}
