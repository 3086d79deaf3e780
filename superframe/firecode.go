package superframe

import "fmt"

// DAB+ Firecode: CRC-16 with generator polynomial
// G(x) = (x^11 + 1)(x^5 + x^3 + x^2 + x + 1), initial register 0, no final XOR.
const firecodePoly = 0x782F

// The Firecode occupies bytes 0-1 and covers the nine bytes that follow it.
const (
	firecodeLen  = 2
	firecodeSpan = 9
	firecodeEnd  = firecodeLen + firecodeSpan
)

var firecodeTable [256]uint16

// CRC-16-CCITT (polynomial 0x1021) used for the access unit check field.
var ccittTable [256]uint16

func init() {
	firecodeTable = makeTable(firecodePoly)
	ccittTable = makeTable(0x1021)
}

func makeTable(poly uint16) [256]uint16 {
	var t [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

func crc16(table *[256]uint16, crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = (crc << 8) ^ table[byte(crc>>8)^b]
	}
	return crc
}

// Firecode computes the DAB+ Firecode over data, which is normally the nine
// header bytes following the stored code.
func Firecode(data []byte) uint16 {
	return crc16(&firecodeTable, 0, data)
}

// verifyFirecode checks the stored code in frame[0:2] against the code
// computed over frame[2:11].
func verifyFirecode(frame []byte) error {
	if len(frame) < firecodeEnd {
		return fmt.Errorf("%w: %d bytes, Firecode needs %d", ErrMalformedHeader, len(frame), firecodeEnd)
	}
	stored := uint16(frame[0])<<8 | uint16(frame[1])
	computed := Firecode(frame[firecodeLen:firecodeEnd])
	if computed != stored {
		return fmt.Errorf("%w: computed 0x%04X, stored 0x%04X", ErrFirecode, computed, stored)
	}
	return nil
}

// AUCheck computes the 16-bit check word carried in the last two bytes of
// every DAB+ access unit (CRC-16-CCITT, preset 0xFFFF, inverted result).
func AUCheck(data []byte) uint16 {
	return ^crc16(&ccittTable, 0xFFFF, data)
}

// AppendAUCheck appends the check word for data to data.
func AppendAUCheck(data []byte) []byte {
	c := AUCheck(data)
	return append(data, byte(c>>8), byte(c))
}
