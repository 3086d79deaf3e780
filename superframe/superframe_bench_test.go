package superframe

import "testing"

func BenchmarkDecode(b *testing.B) {
	p := AudioParams{DacRate: DacRate48kHz, ChannelMode: Stereo}
	aus := make([][]byte, 6)
	for i := range aus {
		aus[i] = make([]byte, 140)
	}
	frame, err := Encode(p, aus, 960)
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(frame)))
	for b.Loop() {
		Decode(frame)
	}
}
