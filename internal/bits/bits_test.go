package bits

import "testing"

func TestReaderSingleBits(t *testing.T) {
	t.Parallel()
	r := NewReader([]byte{0xA5}) // 10100101
	expected := []bool{true, false, true, false, false, true, false, true}
	for i, want := range expected {
		if got := r.ReadFlag(); got != want {
			t.Errorf("bit %d: got %v, want %v", i, got, want)
		}
	}
	if r.BitsLeft() != 0 {
		t.Errorf("BitsLeft: got %d, want 0", r.BitsLeft())
	}
}

func TestReaderTwelveBitFields(t *testing.T) {
	t.Parallel()
	// Three packed 12-bit values: 0xABC, 0xDEF, 0x123 with a trailing nibble.
	r := NewReader([]byte{0xAB, 0xCD, 0xEF, 0x12, 0x30})
	for i, want := range []uint32{0xABC, 0xDEF, 0x123} {
		if got := r.ReadBits(12); got != want {
			t.Errorf("field %d: got 0x%03X, want 0x%03X", i, got, want)
		}
	}
	if r.Pos() != 36 {
		t.Errorf("Pos: got %d, want 36", r.Pos())
	}
	if r.Overflow() {
		t.Error("unexpected overflow")
	}
}

func TestReaderSixteenBits(t *testing.T) {
	t.Parallel()
	r := NewReader([]byte{0x12, 0x34, 0x56})
	if got := r.ReadBits(16); got != 0x1234 {
		t.Errorf("ReadBits(16): got 0x%X, want 0x1234", got)
	}
	if got := r.ReadBits(8); got != 0x56 {
		t.Errorf("ReadBits(8): got 0x%X, want 0x56", got)
	}
}

func TestReaderThirtyTwoBitsUnaligned(t *testing.T) {
	t.Parallel()
	r := NewReader([]byte{0x0F, 0xFF, 0xFF, 0xFF, 0xF0})
	r.Skip(4)
	if got := r.ReadBits(32); got != 0xFFFFFFFF {
		t.Errorf("ReadBits(32): got 0x%X, want 0xFFFFFFFF", got)
	}
}

func TestReaderOverflow(t *testing.T) {
	t.Parallel()
	r := NewReader([]byte{0xFF})
	if got := r.ReadBits(12); got != 0xFF0 {
		t.Errorf("ReadBits(12) past end: got 0x%X, want 0xFF0", got)
	}
	if !r.Overflow() {
		t.Error("expected overflow after reading past end")
	}
	if r.BitsLeft() != 0 {
		t.Errorf("BitsLeft: got %d, want 0", r.BitsLeft())
	}
}

func TestReaderSkipOverflow(t *testing.T) {
	t.Parallel()
	r := NewReader([]byte{0x00, 0x00})
	r.Skip(17)
	if !r.Overflow() {
		t.Error("expected overflow after skipping past end")
	}
}

func TestWriterSingleBits(t *testing.T) {
	t.Parallel()
	w := NewWriter(1)
	for _, b := range []bool{true, false, true, false, false, true, false, true} {
		w.WriteFlag(b)
	}
	if w.Bytes()[0] != 0xA5 {
		t.Errorf("got 0x%02X, want 0xA5", w.Bytes()[0])
	}
}

func TestWriterTwelveBitFields(t *testing.T) {
	t.Parallel()
	w := NewWriter(3)
	w.WriteBits(12, 0xABC)
	w.WriteBits(12, 0xDEF)
	got := w.Bytes()
	if got[0] != 0xAB || got[1] != 0xCD || got[2] != 0xEF {
		t.Errorf("got %02X %02X %02X, want AB CD EF", got[0], got[1], got[2])
	}
}

func TestWriterToPreservesAndClears(t *testing.T) {
	t.Parallel()
	buf := []byte{0xFF, 0xFF}
	w := NewWriterTo(buf)
	w.WriteBits(4, 0x0)
	if buf[0] != 0x0F || buf[1] != 0xFF {
		t.Errorf("got %02X %02X, want 0F FF", buf[0], buf[1])
	}
}

func TestWriterOverflow(t *testing.T) {
	t.Parallel()
	w := NewWriter(1)
	w.WriteBits(12, 0xFFF)
	if !w.Overflow() {
		t.Error("expected overflow")
	}
	if w.Bytes()[0] != 0xFF {
		t.Errorf("got 0x%02X, want 0xFF", w.Bytes()[0])
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	t.Parallel()
	widths := []int{1, 3, 12, 16, 5, 7, 13, 11, 2}
	values := []uint32{1, 5, 0x9A4, 0xBEEF, 0x11, 0x7F, 0x1ABC, 0x7FF, 2}

	w := NewWriter(9)
	for i, n := range widths {
		w.WriteBits(n, values[i])
	}
	r := NewReader(w.Bytes())
	for i, n := range widths {
		if got := r.ReadBits(n); got != values[i] {
			t.Errorf("field %d (%d bits): got 0x%X, want 0x%X", i, n, got, values[i])
		}
	}
}
