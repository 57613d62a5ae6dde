package audio_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/voicelink/pkg/audio"
)

func TestPCM16_RoundTrip(t *testing.T) {
	t.Parallel()

	in := []int16{0, 1, -1, 32767, -32768}
	got := audio.DecodePCM16(audio.EncodePCM16(in))
	if !slices.Equal(got, in) {
		t.Errorf("round trip = %v; want %v", got, in)
	}
}

func TestConvertPCM(t *testing.T) {
	t.Parallel()

	mono16k := audio.Format{SampleRate: 16000, Channels: 1}
	stereo16k := audio.Format{SampleRate: 16000, Channels: 2}
	mono8k := audio.Format{SampleRate: 8000, Channels: 1}

	tests := []struct {
		name     string
		in       []int16
		from, to audio.Format
		want     []int16
	}{
		{
			name: "same format is passthrough",
			in:   []int16{1, 2, 3},
			from: mono16k, to: mono16k,
			want: []int16{1, 2, 3},
		},
		{
			name: "stereo to mono averages",
			in:   []int16{100, 200, -100, -200},
			from: stereo16k, to: mono16k,
			want: []int16{150, -150},
		},
		{
			name: "stereo to mono does not overflow",
			in:   []int16{32767, 32767},
			from: stereo16k, to: mono16k,
			want: []int16{32767},
		},
		{
			name: "mono to stereo duplicates",
			in:   []int16{5, -5},
			from: mono16k, to: stereo16k,
			want: []int16{5, 5, -5, -5},
		},
		{
			name: "downsample halves length",
			in:   []int16{0, 10, 20, 30},
			from: mono16k, to: mono8k,
			want: []int16{0, 20},
		},
		{
			name: "upsample interpolates",
			in:   []int16{0, 100},
			from: mono8k, to: mono16k,
			want: []int16{0, 50, 100, 100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.DecodePCM16(audio.ConvertPCM(audio.EncodePCM16(tt.in), tt.from, tt.to))
			if !slices.Equal(got, tt.want) {
				t.Errorf("ConvertPCM = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestResample_InvalidRates(t *testing.T) {
	t.Parallel()

	in := []int16{1, 2, 3}
	if got := audio.Resample(in, 1, 0, 16000); !slices.Equal(got, in) {
		t.Errorf("zero src rate changed input: %v", got)
	}
	if got := audio.Resample(in, 1, 16000, -1); !slices.Equal(got, in) {
		t.Errorf("negative dst rate changed input: %v", got)
	}
	if got := audio.Resample(nil, 1, 8000, 16000); got != nil {
		t.Errorf("empty input = %v; want nil", got)
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()

	tests := map[audio.Format]string{
		{SampleRate: 48000, Channels: 2}: "48000Hz stereo",
		{SampleRate: 16000, Channels: 1}: "16000Hz mono",
		{SampleRate: 44100, Channels: 6}: "44100Hz 6ch",
	}
	for f, want := range tests {
		if got := f.String(); got != want {
			t.Errorf("String() = %q; want %q", got, want)
		}
	}
	if got := (audio.Format{SampleRate: 16000, Channels: 1}).BytesPerSecond(); got != 32000 {
		t.Errorf("BytesPerSecond = %d; want 32000", got)
	}
}
