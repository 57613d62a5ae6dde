package session

import "github.com/MrWong99/voicelink/pkg/protocol"

// Route names the single component an inbound message is dispatched to.
type Route int

const (
	// RouteIgnore drops the message after logging it at debug level.
	RouteIgnore Route = iota

	// RouteAudio hands binary frames to the audio pipeline.
	RouteAudio

	// RouteHandshake delivers configuration acknowledgements.
	RouteHandshake

	// RouteIdle delivers agent activity and user activity.
	RouteIdle

	// RouteConversation appends utterances to the history.
	RouteConversation

	// RouteCallback goes straight to the caller's callbacks.
	RouteCallback
)

// String returns the human-readable name of the route.
func (r Route) String() string {
	switch r {
	case RouteIgnore:
		return "ignore"
	case RouteAudio:
		return "audio"
	case RouteHandshake:
		return "handshake"
	case RouteIdle:
		return "idle"
	case RouteConversation:
		return "conversation"
	case RouteCallback:
		return "callback"
	default:
		return "unknown"
	}
}

var agentRoutes = map[protocol.Type]Route{
	protocol.TypeWelcome:              RouteIgnore,
	protocol.TypeSettingsApplied:      RouteHandshake,
	protocol.TypeConversationText:     RouteConversation,
	protocol.TypeUserStartedSpeaking:  RouteIdle,
	protocol.TypeAgentThinking:        RouteIdle,
	protocol.TypeAgentStartedSpeaking: RouteIdle,
	protocol.TypeAgentAudioDone:       RouteIdle,
	protocol.TypeAgentStateChanged:    RouteIdle,
	protocol.TypePromptUpdated:        RouteIgnore,
	protocol.TypeInjectionRefused:     RouteCallback,
	protocol.TypeError:                RouteCallback,
	protocol.TypeWarning:              RouteCallback,
}

var transcriptionRoutes = map[protocol.Type]Route{
	protocol.TypeResults:       RouteCallback,
	protocol.TypeSpeechStarted: RouteIdle,
	protocol.TypeUtteranceEnd:  RouteCallback,
	protocol.TypeMetadata:      RouteIgnore,
	protocol.TypeError:         RouteCallback,
}

// RouteOf classifies a structured message from svc. Unknown types are
// ignored.
func RouteOf(svc Service, typ protocol.Type) Route {
	table := agentRoutes
	if svc == ServiceTranscription {
		table = transcriptionRoutes
	}
	if r, ok := table[typ]; ok {
		return r
	}
	return RouteIgnore
}
