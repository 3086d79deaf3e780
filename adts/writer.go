package adts

import (
	"fmt"
	"io"
)

// Writer frames raw AAC access units with ADTS headers for a fixed stream
// configuration, for sources that carry standalone AAC payloads.
type Writer struct {
	w      io.Writer
	params Params
	buf    []byte
}

// NewWriter returns a Writer for the given audio object type (1 = Main,
// 2 = LC, 3 = SSR), sample rate in Hz and channel count. Channel counts
// 1..6 and 8 are accepted; 7 has no ADTS channel configuration and fails
// with ErrUnsupportedChannels, as does any other count.
func NewWriter(w io.Writer, objectType, sampleRate, channels int) (*Writer, error) {
	p, err := ParamsForRate(sampleRate, objectType, channels)
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, params: p}, nil
}

// Params returns the fixed header fields used for every frame.
func (w *Writer) Params() Params {
	return w.params
}

// WriteFrame writes one header followed by frame. Header and payload go out
// in a single Write so an interleaved consumer never sees a partial frame.
func (w *Writer) WriteFrame(frame []byte) error {
	out, err := AppendFrame(w.buf[:0], w.params, frame)
	if err != nil {
		return err
	}
	w.buf = out
	if _, err := w.w.Write(out); err != nil {
		return fmt.Errorf("adts: write frame: %w", err)
	}
	return nil
}
