// Package adts builds and parses MPEG-4 Audio Data Transport Stream frame
// headers (ISO/IEC 14496-3, 7-byte form without CRC).
package adts

import (
	"errors"
	"fmt"

	"github.com/zsiec/dabplus/internal/bits"
)

// HeaderSize is the length of an ADTS header without CRC.
const HeaderSize = 7

// MaxFrameLength is the largest value the 13-bit frame length field holds.
const MaxFrameLength = 0x1FFF

// MaxPayloadLength is the largest payload a single header can describe.
const MaxPayloadLength = MaxFrameLength - HeaderSize

// syncword is the 12-bit ADTS sync pattern.
const syncword = 0xFFF

// bufferFullnessVBR marks a variable bitrate stream.
const bufferFullnessVBR = 0x7FF

// Profile indices as stored in the 2-bit profile field (audio object type - 1).
const (
	ProfileMain uint8 = 0
	ProfileLC   uint8 = 1
	ProfileSSR  uint8 = 2
	ProfileLTP  uint8 = 3
)

var (
	// ErrUnsupportedSampleRate is returned for a sample rate outside the
	// 13 standard AAC sampling frequencies.
	ErrUnsupportedSampleRate = errors.New("adts: unsupported sample rate")

	// ErrUnsupportedChannels is returned for a channel count that has no
	// ADTS channel configuration.
	ErrUnsupportedChannels = errors.New("adts: unsupported channel count")

	// ErrFrameTooLong is returned when payload + header exceeds the 13-bit
	// frame length field.
	ErrFrameTooLong = errors.New("adts: frame length exceeds 13-bit field")

	// ErrInvalidParams is returned when a header field is out of range.
	ErrInvalidParams = errors.New("adts: invalid header parameters")

	// ErrInvalidADTS is returned when the ADTS sync word or header is malformed.
	ErrInvalidADTS = errors.New("adts: invalid ADTS header")
)

// Params are the variable fields of a header. Everything else is fixed:
// MPEG-4, layer 0, no CRC, VBR buffer fullness, one raw data block.
type Params struct {
	Profile         uint8 // 0..3, audio object type - 1
	SampleRateIndex uint8 // 0..12
	ChannelConfig   uint8 // 0..7
	PayloadLength   int   // raw AAC bytes following the header
}

// FrameLength returns the value of the frame length field: header plus payload.
func (p Params) FrameLength() int {
	return p.PayloadLength + HeaderSize
}

func (p Params) validate() error {
	switch {
	case p.Profile > 3:
		return fmt.Errorf("%w: profile %d", ErrInvalidParams, p.Profile)
	case int(p.SampleRateIndex) >= len(sampleRates):
		return fmt.Errorf("%w: sampling frequency index %d", ErrInvalidParams, p.SampleRateIndex)
	case p.ChannelConfig > 7:
		return fmt.Errorf("%w: channel configuration %d", ErrInvalidParams, p.ChannelConfig)
	case p.PayloadLength < 0:
		return fmt.Errorf("%w: negative payload length %d", ErrInvalidParams, p.PayloadLength)
	case p.PayloadLength > MaxPayloadLength:
		return fmt.Errorf("%w: payload %d bytes, max %d", ErrFrameTooLong, p.PayloadLength, MaxPayloadLength)
	}
	return nil
}

// Build packs p into a 7-byte header. Nothing is written unless every
// field is in range.
func Build(p Params) ([HeaderSize]byte, error) {
	var hdr [HeaderSize]byte
	if err := p.validate(); err != nil {
		return hdr, err
	}
	pack(hdr[:], p)
	return hdr, nil
}

// AppendHeader appends the header for p to dst.
func AppendHeader(dst []byte, p Params) ([]byte, error) {
	hdr, err := Build(p)
	if err != nil {
		return dst, err
	}
	return append(dst, hdr[:]...), nil
}

// AppendFrame appends a header describing payload, followed by payload, to
// dst. p.PayloadLength is taken from len(payload).
func AppendFrame(dst []byte, p Params, payload []byte) ([]byte, error) {
	p.PayloadLength = len(payload)
	out, err := AppendHeader(dst, p)
	if err != nil {
		return dst, err
	}
	return append(out, payload...), nil
}

// pack is the only place the header bit layout lives.
func pack(dst []byte, p Params) {
	w := bits.NewWriterTo(dst)
	w.WriteBits(12, syncword)
	w.WriteBits(1, 0) // ID: MPEG-4
	w.WriteBits(2, 0) // layer
	w.WriteBits(1, 1) // protection_absent
	w.WriteBits(2, uint32(p.Profile))
	w.WriteBits(4, uint32(p.SampleRateIndex))
	w.WriteBits(1, 0) // private_bit
	w.WriteBits(3, uint32(p.ChannelConfig))
	w.WriteBits(1, 0) // original_copy
	w.WriteBits(1, 0) // home
	w.WriteBits(1, 0) // copyright_identification_bit
	w.WriteBits(1, 0) // copyright_identification_start
	w.WriteBits(13, uint32(p.FrameLength()))
	w.WriteBits(11, bufferFullnessVBR)
	w.WriteBits(2, 0) // number_of_raw_data_blocks_in_frame - 1
}

// BuildForRate builds a header from an explicit sample rate in Hz, an audio
// object type (1 = Main, 2 = LC, 3 = SSR, 4 = LTP) and a channel count.
func BuildForRate(sampleRate, objectType, channels, payloadLen int) ([HeaderSize]byte, error) {
	p, err := ParamsForRate(sampleRate, objectType, channels)
	if err != nil {
		return [HeaderSize]byte{}, err
	}
	p.PayloadLength = payloadLen
	return Build(p)
}

// ParamsForRate maps a sample rate, audio object type and channel count to
// header parameters with a zero payload length.
func ParamsForRate(sampleRate, objectType, channels int) (Params, error) {
	idx, err := SampleRateIndex(sampleRate)
	if err != nil {
		return Params{}, err
	}
	cfg, err := ChannelConfig(channels)
	if err != nil {
		return Params{}, err
	}
	if objectType < 1 || objectType > 4 {
		return Params{}, fmt.Errorf("%w: audio object type %d", ErrInvalidParams, objectType)
	}
	return Params{
		Profile:         uint8(objectType - 1),
		SampleRateIndex: idx,
		ChannelConfig:   cfg,
	}, nil
}

// ChannelConfig maps a channel count to the 3-bit channel configuration.
// Counts 1..6 map to themselves and 8 (7.1) maps to 7. A count of 7 has no
// configuration and is rejected.
func ChannelConfig(channels int) (uint8, error) {
	switch {
	case channels >= 1 && channels <= 6:
		return uint8(channels), nil
	case channels == 8:
		return 7, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedChannels, channels)
}

// ChannelCount is the inverse of ChannelConfig. Configuration 0 (defined in
// the bitstream) reports 0.
func ChannelCount(cfg uint8) int {
	if cfg == 7 {
		return 8
	}
	return int(cfg)
}
