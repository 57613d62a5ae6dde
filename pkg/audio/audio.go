// Package audio defines the audio types shared by a voice session and the
// [Pipeline] that moves frames between the capture source, the remote
// service, and the playback collaborator.
//
// The two collaborator abstractions are:
//
//   - [Sender]: accepts outbound capture chunks (a transport connection).
//   - [Player]: queues inbound frames for playback and can abort/clear them.
//
// Concrete players live in sub-packages (audio/player). Test doubles live in
// audio/mock.
package audio

// Direction tells whether a frame was captured locally or received from the
// remote service.
type Direction int

const (
	// Outbound frames are captured locally and sent to the service.
	Outbound Direction = iota

	// Inbound frames are received from the service and played back.
	Inbound
)

// String returns the human-readable name of the direction.
func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "unknown"
	}
}

// Frame is one opaque chunk of audio. Frames carry no identity beyond their
// arrival order on a single connection, recorded in Seq.
type Frame struct {
	Data      []byte
	Direction Direction

	// Seq is the 1-based arrival number of this frame in its direction since
	// the pipeline was last reset.
	Seq uint64
}

// Player is the playback collaborator.
//
// Implementations must be safe for concurrent use.
type Player interface {
	// Queue appends f to the playback queue.
	Queue(f Frame) error

	// AbortPlayback stops the frame currently being played, if any.
	AbortPlayback()

	// ClearQueue discards every frame not yet played.
	ClearQueue()
}

// Sender accepts outbound audio. transport.Conn satisfies it.
type Sender interface {
	SendBinary(data []byte) error
}

// SenderFunc adapts a function to [Sender].
type SenderFunc func(data []byte) error

// SendBinary calls f(data).
func (f SenderFunc) SendBinary(data []byte) error { return f(data) }
