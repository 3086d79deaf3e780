// Package pipeline turns the byte stream of one DAB+ sub-channel into ADTS
// frames. It reads fixed-size superframes, decodes their headers, frames
// every access unit with an ADTS header and hands the result to a relay,
// while collecting telemetry.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/dabplus/adts"
	"github.com/zsiec/dabplus/internal/distribution"
	"github.com/zsiec/dabplus/internal/metrics"
	"github.com/zsiec/dabplus/media"
	"github.com/zsiec/dabplus/superframe"
)

// auCheckSize is the CRC trailer at the end of every DAB+ access unit.
const auCheckSize = 2

// Broadcaster is the subset of distribution.Relay that the pipeline uses
// to fan out ADTS frames. Accepting an interface here decouples the
// pipeline from the concrete Relay type, making it testable with stubs.
type Broadcaster interface {
	BroadcastAudio(frame *media.AudioFrame)
	SetAudioInfo(info distribution.AudioInfo)
}

// Config controls how a Pipeline reads and frames superframes.
type Config struct {
	// FrameSize is the superframe length in bytes, see
	// superframe.SizeForBitrate.
	FrameSize int
	// VerifyFirecode selects superframe.Decode over DecodeUnverified.
	VerifyFirecode bool
	// StripAUCRC drops the 2-byte check word from each access unit before
	// ADTS framing.
	StripAUCRC bool
	// ResyncThreshold is the number of consecutive rejected superframes
	// after which the reader slides byte-wise to find alignment again.
	ResyncThreshold int

	Metrics *metrics.Metrics // optional
	Log     *slog.Logger     // optional
}

// Pipeline reads superframes from a single stream and broadcasts the
// resulting ADTS frames through the relay.
type Pipeline struct {
	log       *slog.Logger
	cfg       Config
	input     *bufio.Reader
	closer    io.Closer
	relay     Broadcaster
	streamKey string
	startTime time.Time
	protocol  string
	decode    func([]byte) (*superframe.Header, error)

	seq       uint64 // superframe slots consumed, drives PTS
	audioInfo distribution.AudioInfo
	infoSent  bool

	superFrames  atomic.Int64
	rejected     atomic.Int64
	accessUnits  atomic.Int64
	resyncs      atomic.Int64
	bytesSkipped atomic.Int64
	synced       atomic.Bool
	lastPTS      atomic.Int64
}

// New creates a Pipeline that reads superframes from input and broadcasts
// ADTS frames via relay. A ResyncThreshold below 1 is treated as 1.
func New(streamKey string, input io.Reader, relay Broadcaster, cfg Config) *Pipeline {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.ResyncThreshold < 1 {
		cfg.ResyncThreshold = 1
	}

	p := &Pipeline{
		log:       log.With("component", "pipeline", "stream", streamKey),
		cfg:       cfg,
		input:     bufio.NewReaderSize(input, max(2*cfg.FrameSize, 4096)),
		relay:     relay,
		streamKey: streamKey,
		startTime: time.Now(),
		decode:    superframe.DecodeUnverified,
	}
	if c, ok := input.(io.Closer); ok {
		p.closer = c
	}
	if cfg.VerifyFirecode {
		p.decode = superframe.Decode
	}
	p.synced.Store(true)
	return p
}

// SetProtocol records the ingest protocol name (e.g. "SRT") for the
// stream API.
func (p *Pipeline) SetProtocol(proto string) {
	p.protocol = proto
}

// Stats returns a snapshot of the pipeline's decoding counters.
func (p *Pipeline) Stats() distribution.PipelineStats {
	return distribution.PipelineStats{
		Protocol:      p.protocol,
		SuperFrameLen: p.cfg.FrameSize,
		SuperFrames:   p.superFrames.Load(),
		Rejected:      p.rejected.Load(),
		AccessUnits:   p.accessUnits.Load(),
		Resyncs:       p.resyncs.Load(),
		BytesSkipped:  p.bytesSkipped.Load(),
		Synced:        p.synced.Load(),
		LastPTS:       p.lastPTS.Load(),
		UptimeMs:      time.Since(p.startTime).Milliseconds(),
	}
}

// Run reads and processes superframes until the input ends or ctx is
// cancelled. Malformed superframes are logged, counted and skipped; only
// read failures other than end of input are returned.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.cfg.FrameSize <= 0 || p.cfg.FrameSize%superframe.BlockSize != 0 {
		return fmt.Errorf("pipeline: invalid superframe size %d", p.cfg.FrameSize)
	}

	if p.closer != nil {
		stop := context.AfterFunc(ctx, func() { p.closer.Close() })
		defer stop()
	}

	size := p.cfg.FrameSize
	failures := 0
	skipped := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := p.input.Peek(size)
		if err != nil {
			return p.readDone(ctx, err, len(frame))
		}

		h, err := p.decode(frame)
		if err == nil && !p.synced.Load() {
			p.seq += uint64((skipped + size/2) / size)
			p.synced.Store(true)
			p.log.Info("superframe alignment recovered", "skipped_bytes", skipped)
			skipped = 0
		}
		if err == nil {
			err = p.emit(h, frame)
		}
		if err == nil {
			failures = 0
			p.discard(size)
			continue
		}

		if !p.synced.Load() {
			p.skipByte()
			skipped++
			continue
		}

		failures++
		p.reject(err)
		if failures < p.cfg.ResyncThreshold {
			p.seq++
			p.discard(size)
			continue
		}

		p.synced.Store(false)
		p.resyncs.Add(1)
		if m := p.cfg.Metrics; m != nil {
			m.Resyncs.WithLabelValues(p.streamKey).Inc()
		}
		p.log.Warn("lost superframe alignment, resyncing", "consecutive_failures", failures)
		failures = 0
		p.skipByte()
		skipped = 1
	}
}

func (p *Pipeline) skipByte() {
	p.discard(1)
	p.bytesSkipped.Add(1)
	if m := p.cfg.Metrics; m != nil {
		m.BytesSkipped.WithLabelValues(p.streamKey).Inc()
	}
}

func (p *Pipeline) discard(n int) {
	// Peek already buffered at least n bytes, so Discard cannot fail.
	_, _ = p.input.Discard(n)
}

func (p *Pipeline) readDone(ctx context.Context, err error, buffered int) error {
	if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		if buffered > 0 {
			p.log.Debug("discarding trailing partial superframe", "bytes", buffered)
		}
		p.log.Info("input finished",
			"superframes", p.superFrames.Load(),
			"rejected", p.rejected.Load(),
			"access_units", p.accessUnits.Load())
		return nil
	}
	return fmt.Errorf("pipeline: read superframe: %w", err)
}

func (p *Pipeline) reject(err error) {
	p.rejected.Add(1)
	reason := "header"
	switch {
	case errors.Is(err, superframe.ErrFirecode):
		reason = "firecode"
	case errors.Is(err, adts.ErrFrameTooLong), errors.Is(err, adts.ErrInvalidParams):
		reason = "adts"
	}
	if m := p.cfg.Metrics; m != nil {
		m.SuperFramesRejected.WithLabelValues(p.streamKey, reason).Inc()
	}
	p.log.Warn("superframe rejected", "seq", p.seq, "reason", reason, "error", err)
}

// emit frames every access unit of a decoded superframe. Nothing is
// broadcast unless all of them can be framed.
func (p *Pipeline) emit(h *superframe.Header, frame []byte) error {
	aus, err := h.AccessUnits(frame)
	if err != nil {
		return err
	}

	params := h.ADTSParams(0)
	basePTS := int64(p.seq) * media.SuperFrameDuration
	out := make([]*media.AudioFrame, len(aus))
	for i, au := range aus {
		payload := au
		if p.cfg.StripAUCRC && len(au) > auCheckSize {
			payload = au[:len(au)-auCheckSize]
		}
		data, err := adts.AppendFrame(make([]byte, 0, adts.HeaderSize+len(payload)), params, payload)
		if err != nil {
			return fmt.Errorf("access unit %d: %w", i, err)
		}
		out[i] = &media.AudioFrame{
			PTS:        basePTS + int64(i)*media.SuperFrameDuration/int64(len(aus)),
			Data:       data,
			SampleRate: h.CoreSampleRate(),
			Channels:   h.Channels(),
			Codec:      h.CodecString(),
			SuperFrame: p.seq,
			AUIndex:    i,
		}
	}

	p.updateAudioInfo(h)
	for _, f := range out {
		p.relay.BroadcastAudio(f)
	}

	p.superFrames.Add(1)
	p.accessUnits.Add(int64(len(out)))
	p.lastPTS.Store(out[len(out)-1].PTS)
	if m := p.cfg.Metrics; m != nil {
		m.SuperFramesDecoded.WithLabelValues(p.streamKey).Inc()
		m.AccessUnits.WithLabelValues(p.streamKey).Add(float64(len(out)))
		hist := m.AUSize.WithLabelValues(p.streamKey)
		for _, f := range out {
			hist.Observe(float64(len(f.Data) - adts.HeaderSize))
		}
	}
	p.seq++
	return nil
}

func (p *Pipeline) updateAudioInfo(h *superframe.Header) {
	info := distribution.AudioInfo{
		Codec:          h.CodecString(),
		SampleRate:     h.OutputSampleRate(),
		CoreSampleRate: h.CoreSampleRate(),
		Channels:       h.Channels(),
		SBR:            h.SBR,
		PS:             h.PS,
		Surround:       h.Surround.String(),
	}
	if p.infoSent && info == p.audioInfo {
		return
	}
	if p.infoSent {
		p.log.Info("audio configuration changed", "codec", info.Codec, "sample_rate", info.SampleRate, "channels", info.Channels)
	} else {
		p.log.Info("audio configuration", "codec", info.Codec, "sample_rate", info.SampleRate, "channels", info.Channels)
	}
	p.audioInfo = info
	p.infoSent = true
	p.relay.SetAudioInfo(info)
}
