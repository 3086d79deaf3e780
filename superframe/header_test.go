package superframe

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zsiec/dabplus/adts"
)

var rateClasses = []struct {
	name      string
	params    AudioParams
	numAUs    int
	firstAU   int
	sfIndex   uint8
	coreRate  int
	codec     string
	nominalHz int
}{
	{"32k+SBR", AudioParams{DacRate: DacRate32kHz, SBR: true}, 2, 5, 8, 16000, "mp4a.40.5", 16000},
	{"48k+SBR", AudioParams{DacRate: DacRate48kHz, SBR: true}, 3, 6, 6, 24000, "mp4a.40.5", 24000},
	{"32k", AudioParams{DacRate: DacRate32kHz}, 4, 8, 5, 32000, "mp4a.40.2", 32000},
	{"48k", AudioParams{DacRate: DacRate48kHz}, 6, 11, 3, 48000, "mp4a.40.2", 48000},
}

// evenAUs splits the payload capacity of a superframe into n access units of
// near-equal size, filled with a per-unit byte pattern.
func evenAUs(t *testing.T, p AudioParams, size int) [][]byte {
	t.Helper()
	n, err := AUCount(p)
	if err != nil {
		t.Fatalf("AUCount: %v", err)
	}
	capacity, err := Capacity(p, size)
	if err != nil {
		t.Fatalf("Capacity: %v", err)
	}
	aus := make([][]byte, n)
	remaining := capacity
	for i := range aus {
		l := remaining / (n - i)
		aus[i] = bytes.Repeat([]byte{byte(0xA0 + i)}, l)
		remaining -= l
	}
	return aus
}

func TestDecodeRateClasses(t *testing.T) {
	t.Parallel()
	for _, tc := range rateClasses {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			frame, err := Encode(tc.params, evenAUs(t, tc.params, 960), 960)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			h, err := Decode(frame)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if h.NumAUs != tc.numAUs {
				t.Errorf("NumAUs = %d, want %d", h.NumAUs, tc.numAUs)
			}
			if h.AUStart[0] != tc.firstAU {
				t.Errorf("AUStart[0] = %d, want %d", h.AUStart[0], tc.firstAU)
			}
			if len(h.AUStart) != tc.numAUs+1 {
				t.Fatalf("len(AUStart) = %d, want %d", len(h.AUStart), tc.numAUs+1)
			}
			if got := h.AUStart[tc.numAUs]; got != 880 {
				t.Errorf("sentinel = %d, want 880", got)
			}
			if diff := cmp.Diff(tc.params, h.AudioParams); diff != "" {
				t.Errorf("AudioParams mismatch (-want +got):\n%s", diff)
			}
			if h.SampleRateIndex() != tc.sfIndex {
				t.Errorf("SampleRateIndex = %d, want %d", h.SampleRateIndex(), tc.sfIndex)
			}
			if h.CoreSampleRate() != tc.coreRate {
				t.Errorf("CoreSampleRate = %d, want %d", h.CoreSampleRate(), tc.coreRate)
			}
			if h.CodecString() != tc.codec {
				t.Errorf("CodecString = %q, want %q", h.CodecString(), tc.codec)
			}
		})
	}
}

func TestDecodeAUStartStrictlyIncreasing(t *testing.T) {
	t.Parallel()
	for _, tc := range rateClasses {
		for blocks := 1; blocks <= 24; blocks++ {
			size := blocks * BlockSize
			capacity, _ := Capacity(tc.params, size)
			if capacity < tc.numAUs {
				continue
			}
			frame, err := Encode(tc.params, evenAUs(t, tc.params, size), size)
			if err != nil {
				t.Fatalf("%s/%d: Encode: %v", tc.name, size, err)
			}
			h, err := Decode(frame)
			if err != nil {
				t.Fatalf("%s/%d: Decode: %v", tc.name, size, err)
			}
			for i := 1; i < len(h.AUStart); i++ {
				if h.AUStart[i] <= h.AUStart[i-1] {
					t.Errorf("%s/%d: AUStart not increasing at %d: %v", tc.name, size, i, h.AUStart)
				}
			}
			if got, want := h.AUStart[h.NumAUs], size/BlockSize*BlockPayload; got != want {
				t.Errorf("%s/%d: sentinel = %d, want %d", tc.name, size, got, want)
			}
		}
	}
}

func TestDecodePackedOffsets(t *testing.T) {
	t.Parallel()
	// 48 kHz, no SBR, stereo, PS, surround 5.1. au_start 100, 250, 400, 550,
	// 700 packed as 12-bit fields alternating byte and nibble alignment.
	frame := make([]byte, 960)
	copy(frame, []byte{0x2A, 0x85, 0x59, 0x06, 0x40, 0xFA, 0x19, 0x02, 0x26, 0x2B, 0xC0})

	h, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	want := &Header{
		Firecode: 0x2A85,
		AudioParams: AudioParams{
			DacRate:     DacRate48kHz,
			SBR:         false,
			ChannelMode: Stereo,
			PS:          true,
			Surround:    Surround51,
		},
		NumAUs:  6,
		AUStart: []int{11, 100, 250, 400, 550, 700, 880},
	}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRFABitIgnored(t *testing.T) {
	t.Parallel()
	p := AudioParams{DacRate: DacRate32kHz, SBR: true, ChannelMode: Stereo}
	frame, err := Encode(p, evenAUs(t, p, 240), 240)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	frame[2] |= 0x80
	h, err := DecodeUnverified(frame)
	if err != nil {
		t.Fatalf("DecodeUnverified: %v", err)
	}
	if diff := cmp.Diff(p, h.AudioParams); diff != "" {
		t.Errorf("AudioParams mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTooShort(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"two bytes", []byte{0x00, 0x00}},
		{"six AUs in four bytes", []byte{0x00, 0x00, 0x40, 0x00}},
		{"four AUs in seven bytes", []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x20, 0x03}},
		{"two AUs in four bytes", []byte{0x00, 0x00, 0x20, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeUnverified(tt.data); !errors.Is(err, ErrMalformedHeader) {
				t.Errorf("DecodeUnverified: got %v, want ErrMalformedHeader", err)
			}
			if _, err := Decode(tt.data); !errors.Is(err, ErrMalformedHeader) {
				t.Errorf("Decode: got %v, want ErrMalformedHeader", err)
			}
		})
	}
}

func TestDecodeFirecodeMismatch(t *testing.T) {
	t.Parallel()
	p := AudioParams{DacRate: DacRate48kHz, ChannelMode: Stereo}
	frame, err := Encode(p, evenAUs(t, p, 960), 960)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	frame[1] ^= 0xFF

	_, err = Decode(frame)
	if !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("Decode: got %v, want ErrMalformedHeader", err)
	}
	if !errors.Is(err, ErrFirecode) {
		t.Errorf("Decode: got %v, want ErrFirecode", err)
	}

	h, err := DecodeUnverified(frame)
	if err != nil {
		t.Fatalf("DecodeUnverified: %v", err)
	}
	if h.NumAUs != 6 {
		t.Errorf("NumAUs = %d, want 6", h.NumAUs)
	}
	if h.Firecode != uint16(frame[0])<<8|uint16(frame[1]) {
		t.Errorf("Firecode = 0x%04X, not captured from frame", h.Firecode)
	}
}

func TestDecodeNonIncreasingOffsets(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		frame []byte
	}{
		// 32 kHz, no SBR: au_start 0x100, 0x0F0, 0x200.
		{"descending", append([]byte{0, 0, 0x00, 0x10, 0x00, 0xF0, 0x20, 0x00}, make([]byte, 472)...)},
		// 32 kHz, no SBR: au_start all zero.
		{"zero table", make([]byte, 480)},
		// 48 kHz + SBR: second AU starts past the 110-byte payload region.
		{"past sentinel", append([]byte{0, 0, 0x60, 0x07, 0x80, 0x80}, make([]byte, 114)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeUnverified(tt.frame); !errors.Is(err, ErrMalformedHeader) {
				t.Errorf("got %v, want ErrMalformedHeader", err)
			}
		})
	}
}

func TestDecodeEndToEnd960(t *testing.T) {
	t.Parallel()
	p := AudioParams{DacRate: DacRate48kHz, SBR: false, ChannelMode: Stereo}
	aus := evenAUs(t, p, 960)
	frame, err := Encode(p, aus, 960)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	h, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if h.NumAUs != 6 {
		t.Fatalf("NumAUs = %d, want 6", h.NumAUs)
	}
	starts := h.AUStart[:h.NumAUs]
	for i, s := range starts {
		if s < 11 || s >= 880 {
			t.Errorf("AUStart[%d] = %d outside [11, 880)", i, s)
		}
		if i > 0 && s <= starts[i-1] {
			t.Errorf("AUStart[%d] = %d not ascending", i, s)
		}
	}

	slices, err := h.AccessUnits(frame)
	if err != nil {
		t.Fatalf("AccessUnits: %v", err)
	}
	for i, au := range slices {
		if !bytes.Equal(au, aus[i]) {
			t.Errorf("AU %d: payload mismatch", i)
		}
		hdr, err := h.ADTSHeader(len(au))
		if err != nil {
			t.Fatalf("AU %d: ADTSHeader: %v", i, err)
		}
		parsed, err := adts.ParseHeader(hdr[:])
		if err != nil {
			t.Fatalf("AU %d: ParseHeader: %v", i, err)
		}
		if got, want := parsed.FrameLength(), len(au)+adts.HeaderSize; got != want {
			t.Errorf("AU %d: frame length = %d, want %d", i, got, want)
		}
		if parsed.SampleRate() != 48000 || parsed.Channels() != 2 {
			t.Errorf("AU %d: got %d Hz / %d ch, want 48000 Hz / 2 ch", i, parsed.SampleRate(), parsed.Channels())
		}
	}
}

// The superframe-derived header must match the header built from the
// nominal core sample rate and channel count.
func TestADTSHeaderMatchesExplicitRate(t *testing.T) {
	t.Parallel()
	for _, tc := range rateClasses {
		for _, mode := range []ChannelMode{Mono, Stereo} {
			t.Run(fmt.Sprintf("%s/%s", tc.name, mode), func(t *testing.T) {
				t.Parallel()
				h := &Header{AudioParams: tc.params}
				h.ChannelMode = mode
				for _, l := range []int{0, 1, 200, 880, adts.MaxPayloadLength} {
					derived, err := h.ADTSHeader(l)
					if err != nil {
						t.Fatalf("ADTSHeader(%d): %v", l, err)
					}
					explicit, err := adts.BuildForRate(tc.nominalHz, 2, h.Channels(), l)
					if err != nil {
						t.Fatalf("BuildForRate(%d): %v", l, err)
					}
					if derived != explicit {
						t.Errorf("len %d: derived % X != explicit % X", l, derived, explicit)
					}
				}
			})
		}
	}
}

func TestADTSHeaderTooLong(t *testing.T) {
	t.Parallel()
	h := &Header{AudioParams: AudioParams{DacRate: DacRate48kHz}}
	if _, err := h.ADTSHeader(adts.MaxPayloadLength + 1); !errors.Is(err, adts.ErrFrameTooLong) {
		t.Errorf("got %v, want ErrFrameTooLong", err)
	}
}

func TestAudioObjectType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sbr, ps bool
		want    int
	}{
		{false, false, 2},
		{true, false, 5},
		{true, true, 29},
	}
	for _, tt := range tests {
		h := &Header{AudioParams: AudioParams{SBR: tt.sbr, PS: tt.ps}}
		if got := h.AudioObjectType(); got != tt.want {
			t.Errorf("sbr=%t ps=%t: got %d, want %d", tt.sbr, tt.ps, got, tt.want)
		}
	}
}

func TestAccessUnitsShortFrame(t *testing.T) {
	t.Parallel()
	p := AudioParams{DacRate: DacRate32kHz}
	frame, err := Encode(p, evenAUs(t, p, 480), 480)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	h, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := h.AccessUnits(frame[:400]); !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("got %v, want ErrMalformedHeader", err)
	}
}

func TestAccessUnitsDoNotOverlap(t *testing.T) {
	t.Parallel()
	p := AudioParams{DacRate: DacRate48kHz, SBR: true}
	frame, err := Encode(p, evenAUs(t, p, 360), 360)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	h, _ := Decode(frame)
	aus, err := h.AccessUnits(frame)
	if err != nil {
		t.Fatalf("AccessUnits: %v", err)
	}
	_ = append(aus[0], 0xFF)
	if frame[h.AUStart[1]] != 0xA1 {
		t.Error("appending to an access unit overwrote the next one")
	}
}

func TestSizeForBitrate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kbps    int
		want    int
		wantErr bool
	}{
		{8, 120, false},
		{64, 960, false},
		{96, 1440, false},
		{192, 2880, false},
		{0, 0, true},
		{-8, 0, true},
		{60, 0, true},
	}
	for _, tt := range tests {
		got, err := SizeForBitrate(tt.kbps)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidBitrate) {
				t.Errorf("SizeForBitrate(%d): got %v, want ErrInvalidBitrate", tt.kbps, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("SizeForBitrate(%d) = %d, %v; want %d", tt.kbps, got, err, tt.want)
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	t.Parallel()
	p := AudioParams{DacRate: DacRate32kHz, SBR: true}
	one := [][]byte{{1}, {2}}
	tests := []struct {
		name string
		aus  [][]byte
		size int
	}{
		{"wrong count", [][]byte{{1}}, 120},
		{"size not multiple", one, 100},
		{"zero size", one, 0},
		{"empty AU", [][]byte{{1}, {}}, 120},
		{"overflow", [][]byte{make([]byte, 60), make([]byte, 60)}, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Encode(p, tt.aus, tt.size); !errors.Is(err, ErrEncode) {
				t.Errorf("got %v, want ErrEncode", err)
			}
		})
	}
}

func TestEncodePadsLastAU(t *testing.T) {
	t.Parallel()
	p := AudioParams{DacRate: DacRate32kHz, SBR: true}
	frame, err := Encode(p, [][]byte{{1, 2, 3}, {4, 5}}, 120)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	h, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	aus, _ := h.AccessUnits(frame)
	if diff := cmp.Diff([]byte{1, 2, 3}, aus[0]); diff != "" {
		t.Errorf("AU 0 (-want +got):\n%s", diff)
	}
	if len(aus[1]) != 110-5-3 || aus[1][0] != 4 || aus[1][1] != 5 || aus[1][2] != 0 {
		t.Errorf("AU 1 = % X, want 04 05 followed by zero padding", aus[1][:4])
	}
	for i := 110; i < 120; i++ {
		if frame[i] != 0 {
			t.Fatalf("parity byte %d = 0x%02X, want 0", i, frame[i])
		}
	}
}
