package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format describes 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// ConvertPCM converts pcm from one format to another: channels are downmixed
// or duplicated first, then the result is resampled. Trailing bytes that do
// not form a whole frame are dropped.
func ConvertPCM(pcm []byte, from, to Format) []byte {
	if from == to {
		return pcm
	}
	samples := DecodePCM16(pcm)
	if from.Channels > 0 && to.Channels > 0 && from.Channels != to.Channels {
		samples = remix(samples, from.Channels, to.Channels)
	}
	samples = Resample(samples, to.Channels, from.SampleRate, to.SampleRate)
	return EncodePCM16(samples)
}

// DecodePCM16 interprets b as little-endian int16 samples.
func DecodePCM16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// EncodePCM16 writes samples as little-endian int16.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// remix averages interleaved frames down to one channel and then fans that
// channel out to dst channels.
func remix(samples []int16, src, dst int) []int16 {
	frames := len(samples) / src
	out := make([]int16, frames*dst)
	for i := range frames {
		var sum int
		for c := range src {
			sum += int(samples[i*src+c])
		}
		v := clamp16(float64(sum) / float64(src))
		for c := range dst {
			out[i*dst+c] = v
		}
	}
	return out
}

// Resample converts interleaved samples with the given channel count from
// srcRate to dstRate using linear interpolation. Invalid rates return the
// input unchanged.
func Resample(samples []int16, channels, srcRate, dstRate int) []int16 {
	if channels <= 0 || srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return samples
	}
	srcFrames := len(samples) / channels
	if srcFrames == 0 {
		return nil
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]int16, dstFrames*channels)
	step := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for c := range channels {
			a := float64(samples[idx*channels+c])
			b := float64(samples[next*channels+c])
			out[i*channels+c] = clamp16(a + (b-a)*frac)
		}
	}
	return out
}

func clamp16(v float64) int16 {
	return int16(max(math.MinInt16, min(math.MaxInt16, math.Round(v))))
}
