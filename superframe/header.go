// Package superframe decodes the header of DAB+ Audio Super Frames
// (ETSI TS 102 563) and slices them into AAC access units.
//
// A superframe is five consecutive logical frames of a DAB+ sub-channel,
// protected by an RS(120,110) outer code. After error correction the first
// 110 bytes of every 120-byte block column carry audio; the header at the
// start of the payload locates each access unit within that region.
package superframe

import (
	"errors"
	"fmt"

	"github.com/zsiec/dabplus/adts"
	"github.com/zsiec/dabplus/internal/bits"
)

// RS(120,110): every 120 coded bytes carry 110 bytes of payload.
const (
	BlockSize    = 120
	BlockPayload = 110
)

// fixedHeaderSize covers the Firecode and the flags byte.
const fixedHeaderSize = 3

// auStartBits is the width of each packed au_start field.
const auStartBits = 12

// ErrMalformedHeader is returned when a superframe header cannot be decoded:
// the buffer is too short, the rate combination is not defined, the
// Firecode does not match or the access unit table is inconsistent.
var ErrMalformedHeader = errors.New("superframe: malformed header")

// ErrFirecode is the ErrMalformedHeader variant for a Firecode mismatch.
// Both match with errors.Is.
var ErrFirecode = fmt.Errorf("%w: Firecode mismatch", ErrMalformedHeader)

// ErrInvalidBitrate is returned by SizeForBitrate for bitrates that are not
// a positive multiple of 8 kbit/s.
var ErrInvalidBitrate = errors.New("superframe: invalid sub-channel bitrate")

// DacRate is the sampling rate class of the decoder output.
type DacRate uint8

const (
	DacRate32kHz DacRate = 0
	DacRate48kHz DacRate = 1
)

// Hz returns the output sampling rate.
func (d DacRate) Hz() int {
	if d == DacRate48kHz {
		return 48000
	}
	return 32000
}

func (d DacRate) String() string {
	if d == DacRate48kHz {
		return "48kHz"
	}
	return "32kHz"
}

// ChannelMode is the AAC core channel mode.
type ChannelMode uint8

const (
	Mono   ChannelMode = 0
	Stereo ChannelMode = 1
)

func (c ChannelMode) String() string {
	if c == Stereo {
		return "stereo"
	}
	return "mono"
}

// Surround is the mpeg_surround_config field. Values 3..6 are reserved and
// kept as read.
type Surround uint8

const (
	SurroundNone  Surround = 0
	Surround51    Surround = 1
	Surround71    Surround = 2
	SurroundOther Surround = 7
)

func (s Surround) String() string {
	switch s {
	case SurroundNone:
		return "none"
	case Surround51:
		return "5.1"
	case Surround71:
		return "7.1"
	case SurroundOther:
		return "other"
	}
	return fmt.Sprintf("reserved(%d)", uint8(s))
}

// AudioParams are the audio configuration flags of a superframe.
type AudioParams struct {
	DacRate     DacRate
	SBR         bool
	ChannelMode ChannelMode
	PS          bool
	Surround    Surround
}

type rateClass struct {
	dac DacRate
	sbr bool
}

func (p AudioParams) class() rateClass {
	return rateClass{dac: p.DacRate, sbr: p.SBR}
}

// Number of access units per superframe for each rate class.
var auCounts = map[rateClass]int{
	{DacRate32kHz, true}:  2, // core 16 kHz
	{DacRate48kHz, true}:  3, // core 24 kHz
	{DacRate32kHz, false}: 4, // core 32 kHz
	{DacRate48kHz, false}: 6, // core 48 kHz
}

// Offset of the first access unit: the header plus (n-1) packed 12-bit
// au_start fields, rounded up to a byte.
var firstAUStart = map[int]int{
	2: 5,
	3: 6,
	4: 8,
	6: 11,
}

// AAC core sampling_frequency_index for each rate class. With SBR the core
// runs at half the output rate.
var coreSampleRateIndex = map[rateClass]uint8{
	{DacRate32kHz, true}:  8, // 16 kHz
	{DacRate48kHz, true}:  6, // 24 kHz
	{DacRate32kHz, false}: 5, // 32 kHz
	{DacRate48kHz, false}: 3, // 48 kHz
}

// Header is the decoded header of one superframe.
type Header struct {
	Firecode uint16
	AudioParams

	// NumAUs is the number of access units in the superframe.
	NumAUs int

	// AUStart holds NumAUs+1 byte offsets. Access unit i spans
	// [AUStart[i], AUStart[i+1]); the last entry is the end of the audio
	// payload region.
	AUStart []int
}

// Decode parses the header of one superframe and verifies its Firecode.
// frame must be the complete error-corrected superframe; its length fixes
// the end of the payload region.
func Decode(frame []byte) (*Header, error) {
	return decode(frame, true)
}

// DecodeUnverified is Decode without the Firecode check. The code is still
// captured in Header.Firecode.
func DecodeUnverified(frame []byte) (*Header, error) {
	return decode(frame, false)
}

func decode(frame []byte, verify bool) (*Header, error) {
	if len(frame) < fixedHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedHeader, len(frame), fixedHeaderSize)
	}

	r := bits.NewReader(frame)
	h := &Header{}
	h.Firecode = uint16(r.ReadBits(16))
	r.Skip(1) // rfa
	h.DacRate = DacRate(r.ReadBits(1))
	h.SBR = r.ReadFlag()
	h.ChannelMode = ChannelMode(r.ReadBits(1))
	h.PS = r.ReadFlag()
	h.Surround = Surround(r.ReadBits(3))

	n, ok := auCounts[h.class()]
	if !ok {
		return nil, fmt.Errorf("%w: no access unit layout for dac_rate=%s sbr=%t", ErrMalformedHeader, h.DacRate, h.SBR)
	}
	first := firstAUStart[n]
	if len(frame) < first {
		return nil, fmt.Errorf("%w: %d bytes, %d access units need %d", ErrMalformedHeader, len(frame), n, first)
	}
	if verify {
		if err := verifyFirecode(frame); err != nil {
			return nil, err
		}
	}

	h.NumAUs = n
	h.AUStart = make([]int, n+1)
	h.AUStart[0] = first
	for i := 1; i < n; i++ {
		h.AUStart[i] = int(r.ReadBits(auStartBits))
	}
	h.AUStart[n] = PayloadSize(len(frame))

	for i := 1; i <= n; i++ {
		if h.AUStart[i] <= h.AUStart[i-1] {
			return nil, fmt.Errorf("%w: au_start[%d]=%d does not follow au_start[%d]=%d",
				ErrMalformedHeader, i, h.AUStart[i], i-1, h.AUStart[i-1])
		}
	}

	return h, nil
}

// PayloadSize returns the number of audio payload bytes in a superframe of
// frameLen coded bytes.
func PayloadSize(frameLen int) int {
	return frameLen / BlockSize * BlockPayload
}

// SizeForBitrate returns the superframe length in bytes for a sub-channel
// bitrate in kbit/s. Five 24 ms logical frames make one superframe.
func SizeForBitrate(kbps int) (int, error) {
	if kbps <= 0 || kbps%8 != 0 {
		return 0, fmt.Errorf("%w: %d kbit/s", ErrInvalidBitrate, kbps)
	}
	return kbps / 8 * BlockSize, nil
}

// SampleRateIndex returns the ADTS sampling_frequency_index of the AAC core.
func (h *Header) SampleRateIndex() uint8 {
	return coreSampleRateIndex[h.class()]
}

// CoreSampleRate returns the AAC core sampling rate in Hz.
func (h *Header) CoreSampleRate() int {
	rate, _ := adts.SampleRate(h.SampleRateIndex())
	return rate
}

// OutputSampleRate returns the decoded output rate in Hz, SBR included.
func (h *Header) OutputSampleRate() int {
	return h.DacRate.Hz()
}

// Channels returns the AAC core channel count. Parametric stereo is
// signalled implicitly and does not change it.
func (h *Header) Channels() int {
	if h.ChannelMode == Stereo {
		return 2
	}
	return 1
}

// AudioObjectType returns the MPEG-4 audio object type of the service:
// 2 (AAC-LC), 5 (HE-AAC, SBR) or 29 (HE-AACv2, SBR+PS).
func (h *Header) AudioObjectType() int {
	switch {
	case h.SBR && h.PS:
		return 29
	case h.SBR:
		return 5
	}
	return 2
}

// CodecString returns the RFC 6381 codec string, e.g. "mp4a.40.5".
func (h *Header) CodecString() string {
	return fmt.Sprintf("mp4a.40.%d", h.AudioObjectType())
}

// ADTSParams returns the ADTS header fields for an access unit of
// payloadLen bytes. The profile is always AAC-LC; SBR and PS stay implicit.
func (h *Header) ADTSParams(payloadLen int) adts.Params {
	return adts.Params{
		Profile:         adts.ProfileLC,
		SampleRateIndex: h.SampleRateIndex(),
		ChannelConfig:   uint8(h.Channels()),
		PayloadLength:   payloadLen,
	}
}

// ADTSHeader builds the 7-byte ADTS header for an access unit of
// payloadLen bytes.
func (h *Header) ADTSHeader(payloadLen int) ([adts.HeaderSize]byte, error) {
	return adts.Build(h.ADTSParams(payloadLen))
}

// AccessUnits returns the access unit slices of frame in ascending order.
// The slices alias frame. frame must be the buffer the header was decoded from.
func (h *Header) AccessUnits(frame []byte) ([][]byte, error) {
	if len(h.AUStart) != h.NumAUs+1 {
		return nil, fmt.Errorf("%w: %d offsets for %d access units", ErrMalformedHeader, len(h.AUStart), h.NumAUs)
	}
	end := h.AUStart[h.NumAUs]
	if len(frame) < end {
		return nil, fmt.Errorf("%w: frame is %d bytes, payload ends at %d", ErrMalformedHeader, len(frame), end)
	}
	aus := make([][]byte, h.NumAUs)
	for i := range aus {
		lo, hi := h.AUStart[i], h.AUStart[i+1]
		aus[i] = frame[lo:hi:hi]
	}
	return aus, nil
}
