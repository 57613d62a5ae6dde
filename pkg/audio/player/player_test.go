package player_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voicelink/pkg/audio"
	"github.com/MrWong99/voicelink/pkg/audio/player"
)

// collector records output chunks. block, when non-nil, makes every write
// wait until it is closed.
type collector struct {
	mu     sync.Mutex
	chunks [][]byte
	block  chan struct{}
}

func (c *collector) write(b []byte) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, append([]byte(nil), b...))
	return nil
}

func (c *collector) get() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.chunks))
	copy(out, c.chunks)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFramePlayer_PlaysInOrder(t *testing.T) {
	t.Parallel()

	var out collector
	p := player.New(out.write)
	t.Cleanup(func() { _ = p.Close() })

	for i := range 5 {
		if err := p.Queue(audio.Frame{Data: []byte{byte(i)}, Seq: uint64(i + 1)}); err != nil {
			t.Fatalf("Queue: %v", err)
		}
	}

	waitFor(t, func() bool { return len(out.get()) == 5 })
	for i, c := range out.get() {
		if c[0] != byte(i) {
			t.Errorf("chunk %d = %v; want [%d]", i, c, i)
		}
	}
}

func TestFramePlayer_StateHandler(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		states []bool
	)
	var out collector
	p := player.New(out.write, player.WithStateHandler(func(playing bool) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, playing)
	}))
	t.Cleanup(func() { _ = p.Close() })

	_ = p.Queue(audio.Frame{Data: []byte{1, 2}})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if !states[0] || states[1] {
		t.Errorf("states = %v; want [true false]", states)
	}
}

func TestFramePlayer_ClearQueueDropsPending(t *testing.T) {
	t.Parallel()

	out := collector{block: make(chan struct{})}
	p := player.New(out.write)
	t.Cleanup(func() { _ = p.Close() })

	for i := range 4 {
		_ = p.Queue(audio.Frame{Data: []byte{byte(i)}})
	}
	// First frame is stuck in the output; the rest are pending.
	waitFor(t, func() bool { return p.Pending() == 3 })

	p.ClearQueue()
	if p.Pending() != 0 {
		t.Fatalf("Pending = %d after ClearQueue", p.Pending())
	}
	close(out.block)

	waitFor(t, func() bool { return !p.Playing() })
	if got := len(out.get()); got != 1 {
		t.Errorf("played %d frames; want 1", got)
	}
}

func TestFramePlayer_AbortCutsPacedFrame(t *testing.T) {
	t.Parallel()

	var out collector
	// 8 kHz mono: 20 ms = 320 bytes per slice. One second of audio = 50 slices.
	p := player.New(out.write, player.WithPacing(audio.Format{SampleRate: 8000, Channels: 1}))
	t.Cleanup(func() { _ = p.Close() })

	_ = p.Queue(audio.Frame{Data: make([]byte, 16000)})
	waitFor(t, func() bool { return len(out.get()) >= 1 })

	p.AbortPlayback()
	waitFor(t, func() bool { return !p.Playing() })

	if got := len(out.get()); got >= 50 {
		t.Errorf("wrote %d slices; abort did not cut the frame", got)
	}
	for _, c := range out.get() {
		if len(c) != 320 {
			t.Errorf("slice len = %d; want 320", len(c))
		}
	}
}

func TestFramePlayer_QueueAfterClose(t *testing.T) {
	t.Parallel()

	var out collector
	p := player.New(out.write)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := p.Queue(audio.Frame{Data: []byte{1}}); !errors.Is(err, player.ErrClosed) {
		t.Errorf("Queue after Close = %v; want ErrClosed", err)
	}
}

func TestFramePlayer_OutputErrorDropsFrame(t *testing.T) {
	t.Parallel()

	var calls int
	var mu sync.Mutex
	p := player.New(func(b []byte) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if b[0] == 0 {
			return errors.New("device gone")
		}
		return nil
	})
	t.Cleanup(func() { _ = p.Close() })

	_ = p.Queue(audio.Frame{Data: []byte{0}})
	_ = p.Queue(audio.Frame{Data: []byte{1}})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
}
