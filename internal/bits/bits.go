// Package bits provides MSB-first bit cursors over byte slices. The reader
// and writer share one addressing model: a bit position counted from the
// most significant bit of the first byte.
package bits

// Reader reads bits MSB-first from a byte slice.
type Reader struct {
	data     []byte
	bitPos   int
	overflow bool
}

// NewReader returns a Reader positioned at the first bit of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Pos returns the current bit position.
func (r *Reader) Pos() int {
	return r.bitPos
}

// BitsLeft returns the number of unread bits.
func (r *Reader) BitsLeft() int {
	total := len(r.data) * 8
	if r.bitPos > total {
		return 0
	}
	return total - r.bitPos
}

// Overflow reports whether a read or skip went past the end of the data.
// Bits read past the end are returned as zero.
func (r *Reader) Overflow() bool {
	return r.overflow
}

// ReadBits reads n bits (0..32) as a big-endian unsigned integer.
func (r *Reader) ReadBits(n int) uint32 {
	var val uint32
	for n > 0 {
		if r.bitPos >= len(r.data)*8 {
			r.overflow = true
			r.bitPos += n
			return val << uint(n)
		}
		avail := 8 - r.bitPos%8
		take := min(avail, n)
		b := uint32(r.data[r.bitPos/8])
		chunk := (b >> uint(avail-take)) & (1<<uint(take) - 1)
		val = val<<uint(take) | chunk
		r.bitPos += take
		n -= take
	}
	return val
}

// ReadFlag reads a single bit.
func (r *Reader) ReadFlag() bool {
	return r.ReadBits(1) == 1
}

// Skip advances the cursor by n bits.
func (r *Reader) Skip(n int) {
	r.bitPos += n
	if r.bitPos > len(r.data)*8 {
		r.overflow = true
	}
}

// Writer writes bits MSB-first into a fixed-size byte slice.
type Writer struct {
	data     []byte
	bitPos   int
	overflow bool
}

// NewWriter returns a Writer over a zeroed buffer of size bytes.
func NewWriter(size int) *Writer {
	return &Writer{data: make([]byte, size)}
}

// NewWriterTo returns a Writer that fills buf in place. Bits not written
// keep their existing value.
func NewWriterTo(buf []byte) *Writer {
	return &Writer{data: buf}
}

// WriteBits writes the low n bits (0..32) of v, most significant first.
// Bits that do not fit in the buffer are dropped and Overflow reports true.
func (w *Writer) WriteBits(n int, v uint32) {
	for i := n - 1; i >= 0; i-- {
		if w.bitPos >= len(w.data)*8 {
			w.overflow = true
			return
		}
		byteIdx := w.bitPos / 8
		mask := byte(1) << uint(7-w.bitPos%8)
		if (v>>uint(i))&1 == 1 {
			w.data[byteIdx] |= mask
		} else {
			w.data[byteIdx] &^= mask
		}
		w.bitPos++
	}
}

// WriteFlag writes a single bit.
func (w *Writer) WriteFlag(b bool) {
	if b {
		w.WriteBits(1, 1)
		return
	}
	w.WriteBits(1, 0)
}

// Pos returns the number of bits written so far.
func (w *Writer) Pos() int {
	return w.bitPos
}

// Overflow reports whether a write ran past the end of the buffer.
func (w *Writer) Overflow() bool {
	return w.overflow
}

// Bytes returns the underlying buffer.
func (w *Writer) Bytes() []byte {
	return w.data
}
