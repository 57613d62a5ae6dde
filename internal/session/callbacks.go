package session

import (
	"github.com/MrWong99/voicelink/internal/conversation"
	"github.com/MrWong99/voicelink/internal/idle"
	"github.com/MrWong99/voicelink/pkg/protocol"
	"github.com/MrWong99/voicelink/pkg/transport"
)

// Callbacks are the caller-visible notifications of a [Coordinator]. Every
// field is optional.
//
// Callbacks never run with coordinator locks held, so they may call back into
// the coordinator, including Stop and Start. Callbacks for one connection are
// delivered in transport order.
type Callbacks struct {
	OnConnectionState func(svc Service, state transport.State)

	// OnDisconnect reports a connection that ended without Stop being called.
	OnDisconnect func(svc Service, err error)

	OnAgentState    func(state idle.State)
	OnUtterance     func(m conversation.Message)
	OnUserMessage   func(text string)
	OnTranscript    func(t protocol.Transcript)
	OnPlaybackState func(playing bool)

	OnUserStartedSpeaking  func()
	OnUserStoppedSpeaking  func()
	OnAgentStartedSpeaking func()
	OnAgentAudioDone       func()

	OnIdleTimeout func()
	OnSleepChange func(asleep bool)
	OnError       func(err Error)
}

// effects collects callbacks and other side effects decided under the
// coordinator lock so they can run after it is released.
type effects []func()

func (fx *effects) add(f func()) {
	*fx = append(*fx, f)
}

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}

func (cb Callbacks) connectionState(svc Service, state transport.State) func() {
	return func() {
		if cb.OnConnectionState != nil {
			cb.OnConnectionState(svc, state)
		}
	}
}

func (cb Callbacks) disconnect(svc Service, err error) func() {
	return func() {
		if cb.OnDisconnect != nil {
			cb.OnDisconnect(svc, err)
		}
	}
}

func (cb Callbacks) agentState(s idle.State) func() {
	return func() {
		if cb.OnAgentState != nil {
			cb.OnAgentState(s)
		}
	}
}

func (cb Callbacks) utterance(m conversation.Message) func() {
	return func() {
		if cb.OnUtterance != nil {
			cb.OnUtterance(m)
		}
	}
}

func (cb Callbacks) userMessage(text string) func() {
	return func() {
		if cb.OnUserMessage != nil {
			cb.OnUserMessage(text)
		}
	}
}

func (cb Callbacks) transcript(t protocol.Transcript) func() {
	return func() {
		if cb.OnTranscript != nil {
			cb.OnTranscript(t)
		}
	}
}

func (cb Callbacks) signal(f func()) func() {
	return func() {
		if f != nil {
			f()
		}
	}
}

func (cb Callbacks) sleepChange(asleep bool) func() {
	return func() {
		if cb.OnSleepChange != nil {
			cb.OnSleepChange(asleep)
		}
	}
}

func (cb Callbacks) failure(e Error) func() {
	return func() {
		if cb.OnError != nil {
			cb.OnError(e)
		}
	}
}
