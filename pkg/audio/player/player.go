// Package player provides a concrete [audio.Player] that plays inbound frames
// in FIFO order on a background dispatch goroutine. Frames are written to an
// output callback, optionally paced at real-time speed so that playback can be
// aborted mid-frame.
package player

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicelink/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Player = (*FramePlayer)(nil)

const (
	// defaultSliceDuration is the span of audio written per output call when
	// pacing is enabled.
	defaultSliceDuration = 20 * time.Millisecond

	defaultQueueCap = 64
)

// ErrClosed is returned by Queue after Close.
var ErrClosed = errors.New("player: closed")

// Option configures a [FramePlayer] during construction.
type Option func(*FramePlayer)

// WithPacing plays frames at real-time speed for the given PCM format. Each
// frame is cut into 20 ms slices and the dispatcher waits one slice duration
// between writes. Without pacing frames are written as fast as the output
// accepts them.
func WithPacing(f audio.Format) Option {
	return func(p *FramePlayer) {
		if f.BytesPerSecond() > 0 {
			p.format = f
		}
	}
}

// WithStateHandler registers fn to be called with true when playback starts
// after the queue was empty and false when the queue drains or playback is
// aborted. fn runs on the dispatch goroutine and must not block.
func WithStateHandler(fn func(playing bool)) Option {
	return func(p *FramePlayer) { p.onState = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *FramePlayer) {
		if l != nil {
			p.logger = l
		}
	}
}

// FramePlayer is a FIFO [audio.Player].
//
// All exported methods are safe for concurrent use.
type FramePlayer struct {
	output  func([]byte) error
	format  audio.Format
	onState func(bool)
	logger  *slog.Logger

	mu            sync.Mutex
	queue         []audio.Frame
	playing       bool
	cancelPlaying chan struct{} // closed to abort the current frame
	closed        bool

	notify chan struct{} // signalled when a frame is queued or playback aborted
	done   chan struct{} // closed by Close to stop the dispatch goroutine
	exited chan struct{}
}

// New creates a [FramePlayer] that delivers PCM to output. The dispatch
// goroutine starts immediately; call [FramePlayer.Close] to stop it.
//
// output is called sequentially from the dispatch goroutine.
func New(output func([]byte) error, opts ...Option) *FramePlayer {
	p := &FramePlayer{
		output: output,
		logger: slog.Default(),
		queue:  make([]audio.Frame, 0, defaultQueueCap),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	go p.dispatch()
	return p
}

// Queue implements [audio.Player]. It returns [ErrClosed] after Close.
func (p *FramePlayer) Queue(f audio.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, f)
	p.wakeLocked()
	return nil
}

// AbortPlayback implements [audio.Player]. The frame currently being written
// is cut short; queued frames are kept.
func (p *FramePlayer) AbortPlayback() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelPlaying != nil {
		close(p.cancelPlaying)
		p.cancelPlaying = nil
	}
	p.wakeLocked()
}

// ClearQueue implements [audio.Player].
func (p *FramePlayer) ClearQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()

	clear(p.queue)
	p.queue = p.queue[:0]
}

// Pending returns the number of frames waiting to be played.
func (p *FramePlayer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Playing reports whether a frame is being played or waiting in the queue.
func (p *FramePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close stops the dispatch goroutine and drops any queued frames. Close is
// idempotent.
func (p *FramePlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.cancelPlaying != nil {
		close(p.cancelPlaying)
		p.cancelPlaying = nil
	}
	p.queue = nil
	p.mu.Unlock()

	close(p.done)
	<-p.exited
	return nil
}

func (p *FramePlayer) wakeLocked() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// dispatch pulls frames from the queue and plays them until Close.
func (p *FramePlayer) dispatch() {
	defer close(p.exited)

	for {
		select {
		case <-p.done:
			return
		case <-p.notify:
		}

		for {
			f, cancel, started, ok := p.dequeue()
			if !ok {
				break
			}
			if started {
				p.setState(true)
			}
			p.play(f, cancel)
		}

		p.mu.Lock()
		wasPlaying := p.playing && len(p.queue) == 0
		if wasPlaying {
			p.playing = false
		}
		p.mu.Unlock()
		if wasPlaying {
			p.setState(false)
		}
	}
}

// dequeue pops the oldest frame. started is true when the player moved from
// idle to playing.
func (p *FramePlayer) dequeue() (f audio.Frame, cancel chan struct{}, started, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.queue) == 0 {
		return audio.Frame{}, nil, false, false
	}
	f = p.queue[0]
	p.queue[0] = audio.Frame{}
	p.queue = p.queue[1:]

	cancel = make(chan struct{})
	p.cancelPlaying = cancel
	started = !p.playing
	p.playing = true
	return f, cancel, started, true
}

// play writes f to the output until it is fully written, cancel is closed or
// the player shuts down.
func (p *FramePlayer) play(f audio.Frame, cancel chan struct{}) {
	defer func() {
		p.mu.Lock()
		if p.cancelPlaying == cancel {
			p.cancelPlaying = nil
		}
		p.mu.Unlock()
	}()

	slice := len(f.Data)
	var wait time.Duration
	if bps := p.format.BytesPerSecond(); bps > 0 {
		frameBytes := p.format.Channels * 2
		slice = max(frameBytes, int(int64(bps)*int64(defaultSliceDuration)/int64(time.Second))/frameBytes*frameBytes)
		wait = defaultSliceDuration
	}
	if slice <= 0 {
		return
	}

	var ticker *time.Ticker
	if wait > 0 {
		ticker = time.NewTicker(wait)
		defer ticker.Stop()
	}

	for off := 0; off < len(f.Data); off += slice {
		select {
		case <-p.done:
			return
		case <-cancel:
			return
		default:
		}

		end := min(off+slice, len(f.Data))
		if err := p.output(f.Data[off:end]); err != nil {
			p.logger.Warn("player: output failed, dropping frame", "seq", f.Seq, "err", err)
			return
		}

		if ticker != nil {
			select {
			case <-p.done:
				return
			case <-cancel:
				return
			case <-ticker.C:
			}
		}
	}
}

func (p *FramePlayer) setState(playing bool) {
	if p.onState != nil {
		p.onState(playing)
	}
}
