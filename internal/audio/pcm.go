package audio

import (
	"encoding/binary"
	"math"
)

// downmixStereo turns interleaved 16-bit LE stereo bytes into mono
// samples by averaging both channels.
func downmixStereo(raw []byte) []int16 {
	n := len(raw) / 4
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		l := int32(int16(binary.LittleEndian.Uint16(raw[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(raw[i*4+2:])))
		out[i] = int16((l + r) / 2)
	}
	return out
}

// resample converts mono samples between rates with linear interpolation.
func resample(in []int16, from, to int) []int16 {
	if len(in) == 0 || from <= 0 || from == to {
		return in
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]int16, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		v := float64(in[j])*(1-frac) + float64(in[j+1])*frac
		out[i] = int16(math.Round(v))
	}
	return out
}
