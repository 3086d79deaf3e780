package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/zsiec/dabplus/adts"
	"github.com/zsiec/dabplus/internal/distribution"
	"github.com/zsiec/dabplus/internal/pipeline"
	"github.com/zsiec/dabplus/media"
	"github.com/zsiec/dabplus/superframe"
)

type options struct {
	bitrate         int
	verifyFirecode  bool
	stripAUCRC      bool
	resyncThreshold int
}

type result struct {
	stats  distribution.PipelineStats
	info   distribution.AudioInfo
	frames int
	bytes  int64
}

// fileSink writes every ADTS frame to w and remembers the first write error.
type fileSink struct {
	w      *bufio.Writer
	err    error
	frames int
	bytes  int64
	info   distribution.AudioInfo
}

func (s *fileSink) BroadcastAudio(frame *media.AudioFrame) {
	if s.err != nil {
		return
	}
	n, err := s.w.Write(frame.Data)
	s.bytes += int64(n)
	if err != nil {
		s.err = err
		return
	}
	s.frames++
}

func (s *fileSink) SetAudioInfo(info distribution.AudioInfo) {
	s.info = info
}

func convert(ctx context.Context, log *slog.Logger, in io.Reader, out io.Writer, opts options) (result, error) {
	size, err := superframe.SizeForBitrate(opts.bitrate)
	if err != nil {
		return result{}, err
	}

	sink := &fileSink{w: bufio.NewWriter(out)}
	p := pipeline.New("file", in, sink, pipeline.Config{
		FrameSize:       size,
		VerifyFirecode:  opts.verifyFirecode,
		StripAUCRC:      opts.stripAUCRC,
		ResyncThreshold: opts.resyncThreshold,
		Log:             log,
	})
	p.SetProtocol("file")

	runErr := p.Run(ctx)
	res := result{stats: p.Stats(), info: sink.info, frames: sink.frames, bytes: sink.bytes}
	if runErr != nil {
		return res, runErr
	}
	if sink.err != nil {
		return res, fmt.Errorf("write output: %w", sink.err)
	}
	if err := sink.w.Flush(); err != nil {
		return res, fmt.Errorf("write output: %w", err)
	}
	return res, nil
}

type verifyReport struct {
	frames      int
	payload     int
	sampleRates map[int]int
	channels    map[int]int
}

// verify re-reads an ADTS stream and tallies what a decoder would see.
func verify(data []byte) (verifyReport, error) {
	frames, err := adts.Parse(data)
	if err != nil {
		return verifyReport{}, err
	}
	r := verifyReport{
		frames:      len(frames),
		sampleRates: make(map[int]int),
		channels:    make(map[int]int),
	}
	for _, f := range frames {
		r.payload += f.PayloadLength
		r.sampleRates[f.SampleRate()]++
		r.channels[f.Channels()]++
	}
	return r, nil
}
