// Package wavio reads and writes WAV files as 16-bit PCM for use as a capture
// source and a playback sink.
package wavio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/voicelink/pkg/audio"
)

// ErrInvalidFile is returned when the input is not a RIFF/WAVE PCM file.
var ErrInvalidFile = errors.New("wavio: not a valid wav file")

// Clip is a decoded WAV file converted to 16-bit PCM in Format.
type Clip struct {
	Format audio.Format
	PCM    []byte
}

// Duration returns the length of the clip.
func (c Clip) Duration() time.Duration {
	bps := c.Format.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(len(c.PCM)) * int64(time.Second) / int64(bps))
}

// Chunks splits the clip into pieces of d. The last chunk may be shorter.
func (c Clip) Chunks(d time.Duration) [][]byte {
	frameBytes := c.Format.Channels * 2
	size := int(int64(c.Format.BytesPerSecond())*int64(d)/int64(time.Second)) / max(frameBytes, 1) * frameBytes
	if size <= 0 {
		size = len(c.PCM)
	}
	var out [][]byte
	for off := 0; off < len(c.PCM); off += size {
		out = append(out, c.PCM[off:min(off+size, len(c.PCM))])
	}
	return out
}

// Stream calls send with consecutive chunks of d, waiting d between chunks to
// simulate a live microphone. It stops early when ctx is cancelled or send
// returns an error.
func (c Clip) Stream(ctx context.Context, d time.Duration, send func([]byte) error) error {
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for _, chunk := range c.Chunks(d) {
		if err := send(chunk); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// ReadFile decodes the WAV file at path and converts it to target.
func ReadFile(path string, target audio.Format) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("wavio: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, target)
}

// Read decodes a WAV stream and converts it to target. Samples of any bit
// depth are scaled to 16 bits.
func Read(r io.ReadSeeker, target audio.Format) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, ErrInvalidFile
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("wavio: decode: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	shift := int(dec.BitDepth) - 16
	for i, v := range buf.Data {
		switch {
		case dec.BitDepth == 8:
			// 8-bit WAV is unsigned.
			samples[i] = int16((v - 128) << 8)
		case shift > 0:
			samples[i] = int16(v >> shift)
		default:
			samples[i] = int16(v)
		}
	}

	src := audio.Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	if target.SampleRate == 0 {
		target.SampleRate = src.SampleRate
	}
	if target.Channels == 0 {
		target.Channels = src.Channels
	}
	pcm := audio.ConvertPCM(audio.EncodePCM16(samples), src, target)
	return Clip{Format: target, PCM: pcm}, nil
}

// Sink writes 16-bit PCM to a WAV file. It is safe for concurrent use.
type Sink struct {
	format audio.Format

	mu     sync.Mutex
	enc    *wav.Encoder
	closer io.Closer
	closed bool
	bytes  int64
}

// Create creates (or truncates) the WAV file at path.
func Create(path string, format audio.Format) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavio: create %s: %w", path, err)
	}
	s := NewSink(f, format)
	s.closer = f
	return s, nil
}

// NewSink returns a Sink encoding into w. Close finalises the header but does
// not close w.
func NewSink(w io.WriteSeeker, format audio.Format) *Sink {
	return &Sink{
		format: format,
		enc:    wav.NewEncoder(w, format.SampleRate, 16, format.Channels, 1),
	}
}

// Write appends little-endian 16-bit PCM. A trailing odd byte is ignored.
func (s *Sink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("wavio: sink closed")
	}
	samples := audio.DecodePCM16(pcm)
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(v)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: s.format.Channels, SampleRate: s.format.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := s.enc.Write(buf); err != nil {
		return fmt.Errorf("wavio: write: %w", err)
	}
	s.bytes += int64(len(samples) * 2)
	return nil
}

// Written returns the number of PCM bytes written so far.
func (s *Sink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Close finalises the WAV header. It is idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	err := s.enc.Close()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	if err != nil {
		return fmt.Errorf("wavio: close: %w", err)
	}
	return nil
}
