package distribution

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/zsiec/dabplus/certs"
	"github.com/zsiec/dabplus/internal/metrics"
)

// audioInfoTimeout is how long a new listener waits for the first decoded
// superframe before the response headers go out anyway.
const audioInfoTimeout = 10 * time.Second

// IngestStats captures ingest connection metrics for the stream API.
type IngestStats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// IngestLookup resolves a stream key to its ingest stats, or nil if the
// stream is not currently being ingested.
type IngestLookup func(key string) *IngestStats

// SRTPullInfo describes an SRT caller-mode pull, the body of POST
// /api/srt-pull and the elements of its GET listing.
type SRTPullInfo struct {
	Address   string `json:"address"`
	StreamKey string `json:"streamKey"`
	StreamID  string `json:"streamId,omitempty"`
	Bitrate   int    `json:"bitrate,omitempty"`
}

// SRTPullFunc initiates an SRT caller-mode pull from a remote source.
type SRTPullFunc func(req SRTPullInfo) error

// SRTStopFunc stops an active SRT pull by stream key.
type SRTStopFunc func(streamKey string) error

// SRTListFunc returns all active SRT pulls.
type SRTListFunc func() []SRTPullInfo

// ServerConfig holds the configuration for the distribution Server.
type ServerConfig struct {
	Addr         string // HTTP/3 listen address
	Cert         *certs.CertInfo
	Metrics      *metrics.Metrics
	IngestLookup IngestLookup
	SRTPull      SRTPullFunc
	SRTStop      SRTStopFunc
	SRTList      SRTListFunc
}

// streamResources bundles the relay and stats provider for a single live
// stream, ensuring both are registered and torn down as a unit.
type streamResources struct {
	relay      *Relay
	pipeline   StatsProvider
	registered time.Time
}

// Server serves live ADTS streams and the REST API over HTTPS and HTTP/3.
type Server struct {
	config ServerConfig
	h3Srv  *http3.Server

	mu      sync.RWMutex
	streams map[string]*streamResources
}

// NewServer creates a distribution Server with the given configuration.
// It returns an error if required fields are missing.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Cert == nil {
		return nil, errors.New("distribution: Cert is required")
	}
	if config.Addr == "" {
		return nil, errors.New("distribution: Addr is required")
	}
	s := &Server{
		config:  config,
		streams: make(map[string]*streamResources),
	}
	s.h3Srv = &http3.Server{
		Addr:    config.Addr,
		Handler: corsMiddleware(s.routes()),
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{config.Cert.TLSCert},
		},
		QUICConfig: &quic.Config{
			MaxIdleTimeout: 30 * time.Second,
		},
	}
	return s, nil
}

// RegisterStream creates a Relay for the given stream key and returns it.
// If the stream already has a relay, the existing one is returned.
func (s *Server) RegisterStream(streamKey string) *Relay {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.relay
	}
	r := NewRelay()
	s.streams[streamKey] = &streamResources{relay: r, registered: time.Now()}
	return r
}

// UnregisterStream removes the relay and pipeline for a stream key and
// drops its listener gauge.
func (s *Server) UnregisterStream(streamKey string) {
	s.mu.Lock()
	sr, ok := s.streams[streamKey]
	delete(s.streams, streamKey)
	if ok && s.config.Metrics != nil {
		s.config.Metrics.ActiveListeners.DeleteLabelValues(streamKey)
	}
	s.mu.Unlock()
	if ok {
		sr.relay.Close()
	}
}

// SetPipeline associates a StatsProvider with a stream key. The stream
// must already be registered via RegisterStream.
func (s *Server) SetPipeline(streamKey string, p StatsProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.streams[streamKey]; ok {
		sr.pipeline = p
	}
}

// GetPipeline returns the StatsProvider for a stream key, or nil if not found.
func (s *Server) GetPipeline(streamKey string) StatsProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.pipeline
	}
	return nil
}

// GetRelay returns the Relay for a stream key, or nil if not found.
func (s *Server) GetRelay(streamKey string) *Relay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.relay
	}
	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /streams/{file}", s.handleStream)
	mux.HandleFunc("GET /api/streams", s.handleListStreams)
	mux.HandleFunc("GET /api/streams/{key}", s.handleGetStream)
	mux.HandleFunc("GET /api/cert-hash", s.handleCertHash)
	mux.HandleFunc("GET /api/srt-pull", s.handleSRTPullList)
	mux.HandleFunc("POST /api/srt-pull", s.handleSRTPullCreate)
	mux.HandleFunc("DELETE /api/srt-pull", s.handleSRTPullStop)
	if s.config.Metrics != nil {
		mux.Handle("GET /metrics", s.config.Metrics.Handler())
	}
	return mux
}

// APIHandler returns the handler for the HTTPS (TCP) listener. It serves
// the same routes as the HTTP/3 listener and advertises HTTP/3 through
// Alt-Svc.
func (s *Server) APIHandler() http.Handler {
	mux := s.routes()
	return corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.h3Srv.SetQUICHeaders(w.Header()); err != nil {
			slog.Debug("alt-svc header not set", "error", err)
		}
		mux.ServeHTTP(w, r)
	}))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Start launches the HTTP/3 server and blocks until the context is
// cancelled or a fatal error occurs.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("HTTP/3 server listening", "addr", s.config.Addr)

	stop := context.AfterFunc(ctx, func() { s.h3Srv.Close() })
	defer stop()

	err := s.h3Srv.ListenAndServe()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type certHashResponse struct {
	Hash string `json:"hash"`
	Addr string `json:"addr"`
}

// handleStream pushes the live ADTS elementary stream for one stream key.
// The response has no length and ends when the client goes away or the
// stream is unregistered.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	streamKey, ok := strings.CutSuffix(r.PathValue("file"), ".aac")
	if !ok || streamKey == "" {
		writeError(w, http.StatusNotFound, "expected /streams/{key}.aac")
		return
	}

	relay := s.GetRelay(streamKey)
	if relay == nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}

	waitCtx, waitCancel := context.WithTimeout(r.Context(), audioInfoTimeout)
	relay.WaitAudioInfo(waitCtx)
	waitCancel()

	w.Header().Set("Content-Type", "audio/aac")
	w.Header().Set("Cache-Control", "no-store")
	if info, ok := relay.AudioInfo(); ok {
		w.Header().Set("X-Audio-Codec", info.Codec)
	}
	w.WriteHeader(http.StatusOK)

	l := newHTTPListener(streamKey, r, s.config.Metrics)
	relay.AddListener(l)
	s.listenerGauge(streamKey, relay, 1)
	defer func() {
		relay.RemoveListener(l.ID())
		s.listenerGauge(streamKey, relay, -1)
	}()

	slog.Info("listener connected", "stream", streamKey, "session", l.ID(), "remote", r.RemoteAddr, "proto", r.Proto)
	if err := l.serve(r.Context(), relay.Done(), w); err != nil {
		slog.Debug("listener ended", "session", l.ID(), "error", err)
	}
}

// listenerGauge adjusts the listener count only while relay is still the
// registered relay for streamKey. UnregisterStream deletes the series under
// the same lock, so listeners that outlive their stream leave it alone.
func (s *Server) listenerGauge(streamKey string, relay *Relay, delta float64) {
	if s.config.Metrics == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sr, ok := s.streams[streamKey]; ok && sr.relay == relay {
		s.config.Metrics.ActiveListeners.WithLabelValues(streamKey).Add(delta)
	}
}

func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.streams))
	for key := range s.streams {
		keys = append(keys, key)
	}
	s.mu.RUnlock()
	sort.Strings(keys)

	resp := make([]StreamInfo, 0, len(keys))
	for _, key := range keys {
		if info, ok := s.streamInfo(key, false); ok {
			resp = append(resp, info)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	info, ok := s.streamInfo(r.PathValue("key"), true)
	if !ok {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}
	resp := struct {
		StreamInfo
		Ingest *IngestStats `json:"ingest,omitempty"`
	}{StreamInfo: info}
	if s.config.IngestLookup != nil {
		resp.Ingest = s.config.IngestLookup(info.Key)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) streamInfo(key string, detail bool) (StreamInfo, bool) {
	s.mu.RLock()
	sr, ok := s.streams[key]
	s.mu.RUnlock()
	if !ok {
		return StreamInfo{}, false
	}

	info := StreamInfo{
		Key:       key,
		Listeners: sr.relay.ListenerCount(),
		UptimeMs:  time.Since(sr.registered).Milliseconds(),
	}
	if audio, ok := sr.relay.AudioInfo(); ok {
		info.Codec = audio.Codec
		info.SampleRate = audio.SampleRate
		info.CoreSampleRate = audio.CoreSampleRate
		info.Channels = audio.Channels
		info.SBR = audio.SBR
		info.PS = audio.PS
		info.Surround = audio.Surround
		if asc, err := AudioSpecificConfig(audio); err == nil {
			info.ASC = hex.EncodeToString(asc)
		} else {
			slog.Debug("audio specific config", "stream", key, "error", err)
		}
	}
	if p := s.GetPipeline(key); p != nil {
		stats := p.Stats()
		info.Pipeline = &stats
	}
	if detail {
		info.ListenerStats = sr.relay.ListenerStatsAll()
	}
	return info, true
}

func (s *Server) handleCertHash(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, certHashResponse{
		Hash: s.config.Cert.FingerprintBase64(),
		Addr: s.config.Addr,
	})
}

// SECURITY: the SRT pull endpoint dials arbitrary addresses. Expose the API
// listener to operators only.
func (s *Server) handleSRTPullList(w http.ResponseWriter, _ *http.Request) {
	if s.config.SRTList == nil {
		writeJSON(w, http.StatusOK, []SRTPullInfo{})
		return
	}
	writeJSON(w, http.StatusOK, s.config.SRTList())
}

func (s *Server) handleSRTPullCreate(w http.ResponseWriter, r *http.Request) {
	if s.config.SRTPull == nil {
		writeError(w, http.StatusNotImplemented, "SRT pull not configured")
		return
	}
	var req SRTPullInfo
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" || req.StreamKey == "" {
		writeError(w, http.StatusBadRequest, "address and streamKey are required")
		return
	}
	if err := s.config.SRTPull(req); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "pulling", "streamKey": req.StreamKey})
}

func (s *Server) handleSRTPullStop(w http.ResponseWriter, r *http.Request) {
	if s.config.SRTStop == nil {
		writeError(w, http.StatusNotImplemented, "SRT pull not configured")
		return
	}
	streamKey := r.URL.Query().Get("streamKey")
	if streamKey == "" {
		writeError(w, http.StatusBadRequest, "streamKey query parameter required")
		return
	}
	if err := s.config.SRTStop(streamKey); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "streamKey": streamKey})
}
