package audio

import (
	"encoding/binary"
	"math"
)

// MinLevelDB is the level reported for digital silence.
const MinLevelDB = -127.0

// Int16sToBytes serialises samples as little-endian int16 PCM. It is the raw
// payload format used when no codec is configured.
func Int16sToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// BytesToInt16s converts little-endian PCM bytes back to samples. A trailing
// odd byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(samples []int16) []int16 {
	out := make([]int16, len(samples)*2)
	for i, s := range samples {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// StereoToMono averages each interleaved L+R pair. Uses int32 arithmetic so
// the sum cannot overflow.
func StereoToMono(samples []int16) []int16 {
	frames := len(samples) / 2
	out := make([]int16, frames)
	for i := range frames {
		l := int32(samples[i*2])
		r := int32(samples[i*2+1])
		out[i] = clamp16((l + r) / 2)
	}
	return out
}

// LevelDB returns the RMS level of samples in dBFS. Empty or silent input
// yields [MinLevelDB].
func LevelDB(samples []int16) float64 {
	if len(samples) == 0 {
		return MinLevelDB
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return MinLevelDB
	}
	return max(20*math.Log10(rms), MinLevelDB)
}

func clamp16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
