package srt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/dabplus/internal/ingest"
)

// dialTimeout bounds the SRT handshake with a remote source.
const dialTimeout = 10 * time.Second

// PullRequest describes a remote SRT source to pull from.
type PullRequest struct {
	Address   string `json:"address"`
	StreamKey string `json:"streamKey"`
	StreamID  string `json:"streamId,omitempty"`
	Bitrate   int    `json:"bitrate,omitempty"` // kbit/s; 0 selects the default
}

type activePull struct {
	req    PullRequest
	cancel context.CancelFunc
}

// Caller manages SRT pull connections, dialing remote SRT sources
// and streaming their superframes into the ingest registry.
type Caller struct {
	log            *slog.Logger
	registry       *ingest.Registry
	defaultBitrate int

	mu    sync.Mutex
	pulls map[string]*activePull
}

// NewCaller creates a Caller that uses the given registry to register
// pulled streams. If log is nil, slog.Default() is used.
func NewCaller(registry *ingest.Registry, defaultBitrate int, log *slog.Logger) *Caller {
	if log == nil {
		log = slog.Default()
	}
	return &Caller{
		log:            log.With("component", "srt-caller"),
		registry:       registry,
		defaultBitrate: defaultBitrate,
		pulls:          make(map[string]*activePull),
	}
}

func (c *Caller) validate(req *PullRequest) error {
	if req.Address == "" {
		return fmt.Errorf("address is required")
	}
	if req.StreamKey == "" {
		return fmt.Errorf("streamKey is required")
	}
	if req.Bitrate == 0 {
		req.Bitrate = c.defaultBitrate
	}
	if req.StreamID == "" {
		req.StreamID = "live/" + req.StreamKey
	}
	if c.registry.Exists(req.StreamKey) {
		return fmt.Errorf("%w: %q", ingest.ErrStreamExists, req.StreamKey)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pulls[req.StreamKey]; exists {
		return fmt.Errorf("pull already active for stream key %q", req.StreamKey)
	}
	return nil
}

// Pull dials the remote SRT listener synchronously (with a timeout),
// returning an error if the connection fails. On success, streaming
// continues in a background goroutine.
func (c *Caller) Pull(ctx context.Context, req PullRequest) error {
	if err := c.validate(&req); err != nil {
		return err
	}

	c.log.Info("dialing", "address", req.Address, "stream_key", req.StreamKey, "bitrate", req.Bitrate)

	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = req.StreamID

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(req.Address, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	closeLate := func() {
		if res := <-ch; res.conn != nil {
			res.conn.Close()
		}
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("SRT dial failed: %w", res.err)
		}
		return c.startStreaming(ctx, req, res.conn)
	case <-timer.C:
		go closeLate()
		return fmt.Errorf("SRT dial timed out after %s", dialTimeout)
	case <-ctx.Done():
		go closeLate()
		return ctx.Err()
	}
}

func (c *Caller) startStreaming(ctx context.Context, req PullRequest, conn *srtgo.Conn) error {
	stream, writer, err := c.registry.Register(req.StreamKey, req.Bitrate)
	if err != nil {
		conn.Close()
		return err
	}
	stream.SetRemoteAddr(req.Address)

	pullCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.pulls[req.StreamKey] = &activePull{req: req, cancel: cancel}
	c.mu.Unlock()

	c.log.Info("connected", "address", req.Address, "stream_key", req.StreamKey,
		"superframe_bytes", stream.FrameSize)

	go func() {
		defer func() {
			cancel()
			conn.Close()
			stats := stream.IngestStats()
			c.registry.Unregister(req.StreamKey)
			c.mu.Lock()
			delete(c.pulls, req.StreamKey)
			c.mu.Unlock()
			c.log.Info("pull ended", "stream_key", req.StreamKey,
				"bytes", stats.BytesReceived, "reads", stats.ReadCount,
				"uptime_ms", stats.UptimeMs)
		}()

		pump(pullCtx, c.log, conn, stream, writer)
	}()

	return nil
}

// Stop cancels the pull for streamKey.
func (c *Caller) Stop(streamKey string) error {
	c.mu.Lock()
	ap, ok := c.pulls[streamKey]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("no active pull for stream key %q", streamKey)
	}

	ap.cancel()
	return nil
}

// ActivePulls returns the requests of all running pulls.
func (c *Caller) ActivePulls() []PullRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]PullRequest, 0, len(c.pulls))
	for _, ap := range c.pulls {
		out = append(out, ap.req)
	}
	return out
}
