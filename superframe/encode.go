package superframe

import (
	"errors"
	"fmt"

	"github.com/zsiec/dabplus/internal/bits"
)

// ErrEncode is returned when access units cannot be packed into a superframe.
var ErrEncode = errors.New("superframe: cannot encode")

// AUCount returns the number of access units a superframe with params p
// carries.
func AUCount(p AudioParams) (int, error) {
	n, ok := auCounts[p.class()]
	if !ok {
		return 0, fmt.Errorf("%w: no access unit layout for dac_rate=%s sbr=%t", ErrEncode, p.DacRate, p.SBR)
	}
	return n, nil
}

// Capacity returns how many access unit bytes fit in a superframe of size
// bytes with params p.
func Capacity(p AudioParams, size int) (int, error) {
	n, err := AUCount(p)
	if err != nil {
		return 0, err
	}
	return PayloadSize(size) - firstAUStart[n], nil
}

// Encode packs aus into an error-corrected superframe of size bytes: the
// header with Firecode, the au_start table, then the access units back to
// back. The last access unit is zero-padded to the end of the payload
// region. The RS parity region is left zero.
func Encode(p AudioParams, aus [][]byte, size int) ([]byte, error) {
	n, err := AUCount(p)
	if err != nil {
		return nil, err
	}
	if len(aus) != n {
		return nil, fmt.Errorf("%w: %d access units, dac_rate=%s sbr=%t needs %d", ErrEncode, len(aus), p.DacRate, p.SBR, n)
	}
	if size <= 0 || size%BlockSize != 0 {
		return nil, fmt.Errorf("%w: size %d is not a multiple of %d", ErrEncode, size, BlockSize)
	}
	if p.Surround > 7 {
		return nil, fmt.Errorf("%w: surround config %d", ErrEncode, p.Surround)
	}

	end := PayloadSize(size)
	starts := make([]int, n)
	pos := firstAUStart[n]
	for i, au := range aus {
		if len(au) == 0 {
			return nil, fmt.Errorf("%w: access unit %d is empty", ErrEncode, i)
		}
		starts[i] = pos
		pos += len(au)
	}
	if pos > end {
		return nil, fmt.Errorf("%w: %d bytes of access units exceed payload end %d", ErrEncode, pos, end)
	}
	if starts[n-1] >= 1<<auStartBits {
		return nil, fmt.Errorf("%w: au_start %d does not fit %d bits", ErrEncode, starts[n-1], auStartBits)
	}

	frame := make([]byte, size)
	w := bits.NewWriterTo(frame)
	w.WriteBits(16, 0) // Firecode, filled in below
	w.WriteBits(1, 0)  // rfa
	w.WriteBits(1, uint32(p.DacRate))
	w.WriteFlag(p.SBR)
	w.WriteBits(1, uint32(p.ChannelMode))
	w.WriteFlag(p.PS)
	w.WriteBits(3, uint32(p.Surround))
	for i := 1; i < n; i++ {
		w.WriteBits(auStartBits, uint32(starts[i]))
	}

	for i, au := range aus {
		copy(frame[starts[i]:], au)
	}

	fc := Firecode(frame[firecodeLen:firecodeEnd])
	frame[0] = byte(fc >> 8)
	frame[1] = byte(fc)

	return frame, nil
}
