package adts

import "fmt"

// AAC sampling frequency table (ISO 14496-3), indexed by sampling_frequency_index.
var sampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

var sampleRateIndex = func() map[int]uint8 {
	m := make(map[int]uint8, len(sampleRates))
	for i, r := range sampleRates {
		m[r] = uint8(i)
	}
	return m
}()

// SampleRateIndex returns the sampling_frequency_index for rate.
func SampleRateIndex(rate int) (uint8, error) {
	idx, ok := sampleRateIndex[rate]
	if !ok {
		return 0, fmt.Errorf("%w: %d Hz", ErrUnsupportedSampleRate, rate)
	}
	return idx, nil
}

// SampleRate returns the frequency in Hz for a sampling_frequency_index.
func SampleRate(index uint8) (int, error) {
	if int(index) >= len(sampleRates) {
		return 0, fmt.Errorf("%w: index %d", ErrUnsupportedSampleRate, index)
	}
	return sampleRates[index], nil
}
