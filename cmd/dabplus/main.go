package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/dabplus/certs"
	"github.com/zsiec/dabplus/internal/config"
	"github.com/zsiec/dabplus/internal/distribution"
	"github.com/zsiec/dabplus/internal/ingest"
	srtingest "github.com/zsiec/dabplus/internal/ingest/srt"
	"github.com/zsiec/dabplus/internal/metrics"
	"github.com/zsiec/dabplus/internal/pipeline"
	"github.com/zsiec/dabplus/internal/stream"
)

var version = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("generating self-signed certificate")
	cert, err := certs.Generate(certs.MaxValidity, cfg.CertHosts...)
	if err != nil {
		slog.Error("failed to generate cert", "error", err)
		os.Exit(1)
	}
	slog.Info("certificate generated",
		"fingerprint", cert.FingerprintBase64(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	m := metrics.New()
	a := &app{
		cfg:     cfg,
		metrics: m,
		mgr:     stream.NewManager(nil, m),
	}

	slog.Info("dabplus starting",
		"version", version,
		"srt", cfg.SRTAddr,
		"http3", cfg.H3Addr,
		"api", cfg.APIAddr,
		"bitrate", cfg.Bitrate,
		"superframe_bytes", cfg.SuperFrameSize(),
		"firecode_check", cfg.FirecodeCheck,
		"cert_hash", cert.FingerprintBase64(),
	)

	g, ctx := errgroup.WithContext(ctx)

	// Registry and caller closures capture the errgroup context so streams
	// stop when any component fails.
	a.registry = ingest.NewRegistry(func(s *ingest.Stream, input io.Reader) {
		a.handleNewStream(ctx, s, input)
	})
	a.srtCaller = srtingest.NewCaller(a.registry, cfg.Bitrate, nil)

	a.distSrv, err = distribution.NewServer(distribution.ServerConfig{
		Addr:    cfg.H3Addr,
		Cert:    cert,
		Metrics: m,
		SRTPull: func(req distribution.SRTPullInfo) error {
			return a.srtCaller.Pull(ctx, srtingest.PullRequest{
				Address:   req.Address,
				StreamKey: req.StreamKey,
				StreamID:  req.StreamID,
				Bitrate:   req.Bitrate,
			})
		},
		SRTStop:      a.srtCaller.Stop,
		SRTList:      a.listSRTPulls,
		IngestLookup: a.lookupIngest,
	})
	if err != nil {
		slog.Error("failed to create distribution server", "error", err)
		os.Exit(1)
	}

	srtSrv := srtingest.NewServer(cfg.SRTAddr, a.registry, cfg.Bitrate, nil)

	apiSrv := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: a.distSrv.APIHandler(),
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert.TLSCert},
		},
	}

	g.Go(func() error {
		return srtSrv.Start(ctx)
	})

	g.Go(func() error {
		slog.Info("HTTPS API server listening", "addr", cfg.APIAddr)
		if err := apiSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return apiSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.distSrv.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type app struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	mgr       *stream.Manager
	registry  *ingest.Registry
	srtCaller *srtingest.Caller
	distSrv   *distribution.Server
}

func (a *app) listSRTPulls() []distribution.SRTPullInfo {
	pulls := a.srtCaller.ActivePulls()
	out := make([]distribution.SRTPullInfo, len(pulls))
	for i, p := range pulls {
		out[i] = distribution.SRTPullInfo{
			Address:   p.Address,
			StreamKey: p.StreamKey,
			StreamID:  p.StreamID,
			Bitrate:   p.Bitrate,
		}
	}
	return out
}

func (a *app) lookupIngest(key string) *distribution.IngestStats {
	s, ok := a.registry.Get(key)
	if !ok {
		return nil
	}
	st := s.IngestStats()
	return &distribution.IngestStats{
		BytesReceived: st.BytesReceived,
		ReadCount:     st.ReadCount,
		ConnectedAt:   st.ConnectedAt,
		UptimeMs:      st.UptimeMs,
		RemoteAddr:    st.RemoteAddr,
	}
}

func (a *app) handleNewStream(ctx context.Context, s *ingest.Stream, input io.Reader) {
	slog.Info("new stream from ingest", "key", s.Key, "bitrate", s.Bitrate)

	if _, created := a.mgr.Create(s.Key, s.Bitrate); !created {
		slog.Warn("rejecting duplicate stream connection", "key", s.Key)
		if c, ok := input.(io.Closer); ok {
			c.Close()
		}
		return
	}
	defer a.teardownStream(s.Key)

	relay := a.distSrv.RegisterStream(s.Key)

	p := pipeline.New(s.Key, input, relay, pipeline.Config{
		FrameSize:       s.FrameSize,
		VerifyFirecode:  a.cfg.FirecodeCheck,
		StripAUCRC:      a.cfg.StripAUCRC,
		ResyncThreshold: a.cfg.ResyncThreshold,
		Metrics:         a.metrics,
	})
	p.SetProtocol("SRT")
	a.distSrv.SetPipeline(s.Key, p)

	if err := p.Run(ctx); err != nil {
		slog.Error("pipeline error", "stream", s.Key, "error", err)
	}
	slog.Info("stream ended", "key", s.Key)
}

// teardownStream removes all resources for a stream across the distribution
// server and stream manager in a single call.
func (a *app) teardownStream(key string) {
	a.distSrv.UnregisterStream(key)
	a.mgr.Remove(key)
}
