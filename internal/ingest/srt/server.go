package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/dabplus/internal/ingest"
	"github.com/zsiec/dabplus/superframe"
)

// srtReadBufferSize is the read buffer for SRT socket reads. A live-mode
// message is at most 1456 bytes, so one read never truncates.
const srtReadBufferSize = 1316 * 10

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms, one
// superframe).
const srtLatencyNs = 120_000_000

// Server accepts incoming SRT publish connections and registers them
// with the ingest registry for superframe decoding.
type Server struct {
	log            *slog.Logger
	addr           string
	registry       *ingest.Registry
	defaultBitrate int
}

// NewServer creates an SRT server that listens on addr and registers
// incoming streams with the given registry. Publishers that do not name a
// bitrate in their stream ID get defaultBitrate. If log is nil,
// slog.Default() is used.
func NewServer(addr string, registry *ingest.Registry, defaultBitrate int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:            log.With("component", "srt-server"),
		addr:           addr,
		registry:       registry,
		defaultBitrate: defaultBitrate,
	}
}

// Start begins accepting SRT publish connections. It blocks until the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	s.log.Info("listening", "addr", s.addr, "default_bitrate", s.defaultBitrate)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if err := s.admit(req.StreamID); err != nil {
			s.log.Warn("rejecting publisher", "stream_id", req.StreamID, "error", err)
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

// admit validates a publisher's stream ID before the handshake completes.
func (s *Server) admit(streamID string) error {
	if streamID == "" {
		return errors.New("empty stream id")
	}
	key, bitrate, err := parseStreamID(streamID, s.defaultBitrate)
	if err != nil {
		return err
	}
	if _, err := superframe.SizeForBitrate(bitrate); err != nil {
		return err
	}
	if s.registry.Exists(key) {
		return fmt.Errorf("%w: %q", ingest.ErrStreamExists, key)
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn *srtgo.Conn) {
	defer conn.Close()

	streamKey, bitrate, err := parseStreamID(conn.StreamID(), s.defaultBitrate)
	if err != nil {
		s.log.Warn("bad stream id", "stream_id", conn.StreamID(), "error", err)
		return
	}

	stream, writer, err := s.registry.Register(streamKey, bitrate)
	if err != nil {
		s.log.Warn("register failed", "stream_key", streamKey, "error", err)
		return
	}
	stream.SetRemoteAddr(conn.RemoteAddr().String())
	s.log.Info("publish", "stream_key", streamKey, "bitrate", bitrate,
		"superframe_bytes", stream.FrameSize, "remote", conn.RemoteAddr())

	pump(ctx, s.log, conn, stream, writer)

	stats := stream.IngestStats()
	s.registry.Unregister(streamKey)
	s.log.Info("connection closed", "stream_key", streamKey,
		"bytes", stats.BytesReceived, "reads", stats.ReadCount,
		"uptime_ms", stats.UptimeMs)
}

// pump copies SRT payloads into the ingest pipe until the connection
// ends, ctx is cancelled or the pipeline stops reading.
func pump(ctx context.Context, log *slog.Logger, conn io.ReadCloser, stream *ingest.Stream, w io.Writer) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, srtReadBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			stream.RecordRead(n)
			if _, werr := w.Write(buf[:n]); werr != nil {
				log.Debug("pipe write error", "stream_key", stream.Key, "error", werr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Debug("read error", "stream_key", stream.Key, "error", err)
			}
			return
		}
	}
}
