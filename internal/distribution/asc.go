package distribution

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/mp4ff/aac"
)

// AudioSpecificConfig encodes the MPEG-4 AudioSpecificConfig matching
// info, for clients that feed a raw-AAC decoder instead of parsing ADTS.
// SBR and PS are signalled explicitly (HE-AAC v1/v2).
func AudioSpecificConfig(info AudioInfo) ([]byte, error) {
	asc := &aac.AudioSpecificConfig{
		ObjectType:           aac.AAClc,
		ChannelConfiguration: byte(info.Channels),
		SamplingFrequency:    info.CoreSampleRate,
	}
	switch {
	case info.SBR && info.PS:
		asc.ObjectType = aac.HEAACv2
		asc.ExtensionFrequency = info.SampleRate
		asc.SBRPresentFlag = true
		asc.PSPresentFlag = true
		asc.ChannelConfiguration = 1
	case info.SBR:
		asc.ObjectType = aac.HEAACv1
		asc.ExtensionFrequency = info.SampleRate
		asc.SBRPresentFlag = true
	}

	var buf bytes.Buffer
	if err := asc.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode audio specific config: %w", err)
	}
	return buf.Bytes(), nil
}
