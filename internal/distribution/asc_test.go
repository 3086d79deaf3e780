package distribution

import (
	"bytes"
	"testing"

	"github.com/Eyevinn/mp4ff/aac"
)

func TestAudioSpecificConfigLC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info AudioInfo
		want []byte
	}{
		{"48k stereo", AudioInfo{CoreSampleRate: 48000, SampleRate: 48000, Channels: 2}, []byte{0x11, 0x90}},
		{"32k mono", AudioInfo{CoreSampleRate: 32000, SampleRate: 32000, Channels: 1}, []byte{0x12, 0x88}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := AudioSpecificConfig(tt.info)
			if err != nil {
				t.Fatalf("AudioSpecificConfig: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got % X, want % X", got, tt.want)
			}
		})
	}
}

func TestAudioSpecificConfigHEAAC(t *testing.T) {
	t.Parallel()

	info := AudioInfo{CoreSampleRate: 24000, SampleRate: 48000, Channels: 2, SBR: true}
	got, err := AudioSpecificConfig(info)
	if err != nil {
		t.Fatalf("AudioSpecificConfig: %v", err)
	}

	asc, err := aac.DecodeAudioSpecificConfig(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("DecodeAudioSpecificConfig(% X): %v", got, err)
	}
	if asc.ObjectType != aac.HEAACv1 {
		t.Errorf("object type = %d, want %d", asc.ObjectType, aac.HEAACv1)
	}
	if asc.SamplingFrequency != 24000 || asc.ExtensionFrequency != 48000 {
		t.Errorf("frequencies = %d/%d, want 24000/48000", asc.SamplingFrequency, asc.ExtensionFrequency)
	}
}
