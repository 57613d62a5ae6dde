package audio

import (
	"errors"
	"sync"
)

// ErrNoSender is returned by [Pipeline.SendOutbound] when no connection is
// available to carry the chunk.
var ErrNoSender = errors.New("audio: no open connection for outbound audio")

// Stats counts what the pipeline did with the frames it saw.
type Stats struct {
	// Sent is the number of outbound chunks accepted by the sender.
	Sent uint64

	// Queued is the number of inbound frames handed to the player.
	Queued uint64

	// Discarded is the number of inbound frames dropped by the block gate.
	Discarded uint64

	// Suppressed is the number of chunks dropped while capture or playback
	// was suspended.
	Suppressed uint64
}

// Pipeline routes outbound capture chunks to a [Sender] and inbound frames to
// a [Player], applying the interrupt gate and sleep suspension.
//
// The block gate is set by [Pipeline.Interrupt] and cleared only by
// [Pipeline.Allow] and [Pipeline.Reset]. Nothing else touches it.
//
// All methods are safe for concurrent use.
type Pipeline struct {
	player Player

	mu                sync.Mutex
	blocked           bool
	captureSuspended  bool
	playbackSuspended bool
	outSeq            uint64
	inSeq             uint64
	stats             Stats
}

// NewPipeline returns a pipeline that plays inbound frames through player.
// A nil player discards inbound audio silently.
func NewPipeline(player Player) *Pipeline {
	if player == nil {
		player = nopPlayer{}
	}
	return &Pipeline{player: player}
}

// SendOutbound forwards chunk to s. Chunks are not buffered; an error from s
// is returned unchanged. While capture is suspended the chunk is dropped and
// nil is returned.
func (p *Pipeline) SendOutbound(s Sender, chunk []byte) error {
	p.mu.Lock()
	if p.captureSuspended {
		p.stats.Suppressed++
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if s == nil {
		return ErrNoSender
	}
	if err := s.SendBinary(chunk); err != nil {
		return err
	}

	p.mu.Lock()
	p.outSeq++
	p.stats.Sent++
	p.mu.Unlock()
	return nil
}

// HandleInbound queues data for playback unless the gate is set or playback
// is suspended. It reports whether the frame reached the player.
func (p *Pipeline) HandleInbound(data []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.blocked {
		p.stats.Discarded++
		return false, nil
	}
	if p.playbackSuspended {
		p.stats.Suppressed++
		return false, nil
	}

	p.inSeq++
	if err := p.player.Queue(Frame{Data: data, Direction: Inbound, Seq: p.inSeq}); err != nil {
		return false, err
	}
	p.stats.Queued++
	return true, nil
}

// Interrupt sets the block gate, clears the player's queue and then aborts
// the frame being played. No queued frame can start between the two calls.
func (p *Pipeline) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.blocked = true
	p.stopPlayer()
}

// Allow clears the block gate. Frames discarded while blocked are not
// replayed.
func (p *Pipeline) Allow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocked = false
}

// Blocked reports whether the gate is set.
func (p *Pipeline) Blocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blocked
}

// SuspendCapture drops outbound chunks while on is true.
func (p *Pipeline) SuspendCapture(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captureSuspended = on
}

// SuspendPlayback drops inbound frames while on is true. Turning it on also
// stops whatever is currently playing.
func (p *Pipeline) SuspendPlayback(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.playbackSuspended = on
	if on {
		p.stopPlayer()
	}
}

func (p *Pipeline) stopPlayer() {
	p.player.ClearQueue()
	p.player.AbortPlayback()
}

// Suspended reports the capture and playback suspension flags.
func (p *Pipeline) Suspended() (capture, playback bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captureSuspended, p.playbackSuspended
}

// Reset clears the gate and both suspension flags and restarts frame
// numbering. Counters in [Stats] are cumulative and survive a reset.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.blocked = false
	p.captureSuspended = false
	p.playbackSuspended = false
	p.outSeq = 0
	p.inSeq = 0
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

type nopPlayer struct{}

func (nopPlayer) Queue(Frame) error { return nil }
func (nopPlayer) AbortPlayback()    {}
func (nopPlayer) ClearQueue()       {}
