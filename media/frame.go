// Package media defines the frame types that flow from the superframe
// pipeline to distribution.
package media

// AudioBufferSize is the per-listener channel depth: about 2.4 s of audio
// at six access units per 120 ms superframe.
const AudioBufferSize = 120

// PTS clock rate and the span of one superframe on that clock.
const (
	ClockRate          = 90000
	SuperFrameDuration = 10800 // 120 ms
)

// AudioFrame is a single AAC access unit wrapped in an ADTS header, ready
// to be written to an elementary stream.
type AudioFrame struct {
	PTS        int64
	Data       []byte // complete ADTS frame (header + payload)
	SampleRate int    // AAC core sampling rate signalled in the header
	Channels   int
	Codec      string // RFC 6381 codec string, e.g. "mp4a.40.5"

	// SuperFrame is the sequence number of the source superframe and
	// AUIndex the position of the access unit within it.
	SuperFrame uint64
	AUIndex    int
}
