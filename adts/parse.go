package adts

import "fmt"

// Header is a decoded ADTS header.
type Header struct {
	Params
	HasCRC bool
}

// Size returns the header size in bytes: 7, or 9 with CRC.
func (h Header) Size() int {
	if h.HasCRC {
		return HeaderSize + 2
	}
	return HeaderSize
}

// SampleRate returns the sampling frequency in Hz.
func (h Header) SampleRate() int {
	return sampleRates[h.SampleRateIndex]
}

// Channels returns the channel count for the channel configuration.
func (h Header) Channels() int {
	return ChannelCount(h.ChannelConfig)
}

// ParseHeader decodes the ADTS header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("%w: %d bytes", ErrInvalidADTS, len(b))
	}
	if b[0] != 0xFF || b[1]&0xF0 != 0xF0 {
		return h, fmt.Errorf("%w: no sync word", ErrInvalidADTS)
	}

	h.HasCRC = b[1]&0x01 == 0
	h.Profile = b[2] >> 6
	h.SampleRateIndex = (b[2] >> 2) & 0x0F
	if int(h.SampleRateIndex) >= len(sampleRates) {
		return h, fmt.Errorf("%w: sampling frequency index %d", ErrInvalidADTS, h.SampleRateIndex)
	}
	h.ChannelConfig = (b[2]&0x01)<<2 | (b[3]>>6)&0x03

	frameLen := int(b[3]&0x03)<<11 |
		int(b[4])<<3 |
		int(b[5]>>5)
	if frameLen < h.Size() {
		return h, fmt.Errorf("%w: frame length %d shorter than header", ErrInvalidADTS, frameLen)
	}
	h.PayloadLength = frameLen - h.Size()
	return h, nil
}

// Frame is a single ADTS frame located in a byte stream.
type Frame struct {
	Header
	Data []byte // complete ADTS frame (header + payload)
}

// Payload returns the raw AAC bytes after the header.
func (f Frame) Payload() []byte {
	return f.Data[f.Size():]
}

// Parse splits an ADTS byte stream into frames. Bytes before a sync word are
// skipped; a truncated trailing frame is dropped.
func Parse(data []byte) ([]Frame, error) {
	var frames []Frame
	offset := 0

	for offset < len(data) {
		if len(data)-offset < HeaderSize {
			break
		}

		if data[offset] != 0xFF || (data[offset+1]&0xF0) != 0xF0 {
			offset++
			continue
		}

		h, err := ParseHeader(data[offset:])
		if err != nil {
			return frames, err
		}

		frameLen := h.Size() + h.PayloadLength
		if offset+frameLen > len(data) {
			break // truncated
		}

		frames = append(frames, Frame{
			Header: h,
			Data:   data[offset : offset+frameLen],
		})

		offset += frameLen
	}

	return frames, nil
}
