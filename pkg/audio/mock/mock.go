// Package mock provides recording implementations of [audio.Player] and
// [audio.Sender] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on counts and arguments, and expose exported error fields that
// control return values.
//
// Typical usage:
//
//	player := &mock.Player{}
//	p := audio.NewPipeline(player)
//	_, _ = p.HandleInbound([]byte{1, 2})
//	if player.QueueCount() != 1 { ... }
package mock

import (
	"sync"

	"github.com/MrWong99/voicelink/pkg/audio"
)

var (
	_ audio.Player = (*Player)(nil)
	_ audio.Sender = (*Sender)(nil)
)

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// QueueErr is returned by Queue.
	QueueErr error

	// QueueCalls records every frame passed to Queue, in order.
	QueueCalls []audio.Frame

	// CallCountAbortPlayback records how many times AbortPlayback was called.
	CallCountAbortPlayback int

	// CallCountClearQueue records how many times ClearQueue was called.
	CallCountClearQueue int

	// StopCalls records "abort" and "clear" in call order.
	StopCalls []string
}

// Queue implements [audio.Player]. Records the frame and returns QueueErr.
func (p *Player) Queue(f audio.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.QueueCalls = append(p.QueueCalls, f)
	return p.QueueErr
}

// AbortPlayback implements [audio.Player].
func (p *Player) AbortPlayback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountAbortPlayback++
	p.StopCalls = append(p.StopCalls, "abort")
}

// ClearQueue implements [audio.Player].
func (p *Player) ClearQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClearQueue++
	p.StopCalls = append(p.StopCalls, "clear")
}

// QueueCount returns the number of Queue calls so far.
func (p *Player) QueueCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.QueueCalls)
}

// Frames returns a copy of the queued frames.
func (p *Player) Frames() []audio.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audio.Frame, len(p.QueueCalls))
	copy(out, p.QueueCalls)
	return out
}

// Counts returns the abort and clear call counts.
func (p *Player) Counts() (abort, clear int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCountAbortPlayback, p.CallCountClearQueue
}

// StopOrder returns a copy of StopCalls.
func (p *Player) StopOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.StopCalls...)
}

// ─── Sender ───────────────────────────────────────────────────────────────────

// Sender is a mock implementation of [audio.Sender].
type Sender struct {
	mu sync.Mutex

	// Err is returned by SendBinary.
	Err error

	// Sent records every payload passed to SendBinary.
	Sent [][]byte
}

// SendBinary implements [audio.Sender]. Records data unless Err is set.
func (s *Sender) SendBinary(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Sent = append(s.Sent, append([]byte(nil), data...))
	return nil
}

// Count returns how many payloads were accepted.
func (s *Sender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}
