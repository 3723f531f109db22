package audio

import "math"

const waveformPoints = 64

// buildWaveform reduces samples to the 64 amplitude points (0..100)
// WhatsApp draws under a voice note.
func buildWaveform(samples []int16) []byte {
	wf := make([]byte, waveformPoints)
	if len(samples) == 0 {
		return wf
	}
	levels := make([]float64, waveformPoints)
	var peak float64
	for i := range levels {
		start := i * len(samples) / waveformPoints
		end := (i + 1) * len(samples) / waveformPoints
		if end <= start {
			continue
		}
		var sum float64
		for _, s := range samples[start:end] {
			sum += math.Abs(float64(s))
		}
		levels[i] = sum / float64(end-start)
		if levels[i] > peak {
			peak = levels[i]
		}
	}
	if peak == 0 {
		return wf
	}
	for i, l := range levels {
		wf[i] = byte(math.Round(l / peak * 100))
	}
	return wf
}
