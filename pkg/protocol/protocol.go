// Package protocol defines the JSON messages exchanged with a voice agent
// service and a streaming transcription service.
//
// Every structured message is a JSON object with a "type" discriminator. The
// package only models what the session needs for routing, the configuration
// handshake, and conversation tracking; unknown fields are ignored on decode
// and unknown types are surfaced verbatim through [Type].
package protocol

import (
	"encoding/json"
	"fmt"
)

// Type is the value of a message's "type" field.
type Type string

// Inbound agent messages.
const (
	TypeWelcome              Type = "Welcome"
	TypeSettingsApplied      Type = "SettingsApplied"
	TypeConversationText     Type = "ConversationText"
	TypeUserStartedSpeaking  Type = "UserStartedSpeaking"
	TypeAgentThinking        Type = "AgentThinking"
	TypeAgentStartedSpeaking Type = "AgentStartedSpeaking"
	TypeAgentAudioDone       Type = "AgentAudioDone"
	TypeAgentStateChanged    Type = "AgentStateChanged"
	TypePromptUpdated        Type = "PromptUpdated"
	TypeInjectionRefused     Type = "InjectionRefused"
	TypeError                Type = "Error"
	TypeWarning              Type = "Warning"
)

// Inbound transcription messages.
const (
	TypeResults       Type = "Results"
	TypeSpeechStarted Type = "SpeechStarted"
	TypeUtteranceEnd  Type = "UtteranceEnd"
	TypeMetadata      Type = "Metadata"
)

// Outbound messages.
const (
	TypeSettings           Type = "Settings"
	TypeUpdatePrompt       Type = "UpdatePrompt"
	TypeInjectUserMessage  Type = "InjectUserMessage"
	TypeInjectAgentMessage Type = "InjectAgentMessage"
	TypeKeepAlive          Type = "KeepAlive"
	TypeCloseStream        Type = "CloseStream"
)

// Role identifies the speaker of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Agent activity states reported by AgentStateChanged. Services may report
// other values; those are carried through unchanged.
const (
	StateIdle      = "idle"
	StateListening = "listening"
	StateThinking  = "thinking"
	StateSpeaking  = "speaking"
)

// ── Inbound payloads ───────────────────────────────────────────────────────────

// Welcome is the first message an agent service sends after the socket opens.
type Welcome struct {
	Type      Type   `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

// ConversationText carries one finished utterance of either party.
type ConversationText struct {
	Type    Type   `json:"type"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AgentStateChanged reports the agent's turn-taking phase.
type AgentStateChanged struct {
	Type  Type   `json:"type"`
	State string `json:"state"`
}

// AgentThinking is sent when the agent starts producing a response.
type AgentThinking struct {
	Type    Type   `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServerError is the payload of Error and Warning messages.
type ServerError struct {
	Type        Type   `json:"type"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Text returns the most descriptive text of the error.
func (e ServerError) Text() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Message != "":
		return e.Message
	default:
		return string(e.Type)
	}
}

// InjectionRefused is sent when the agent declines an injected message.
type InjectionRefused struct {
	Type    Type   `json:"type"`
	Message string `json:"message,omitempty"`
}

// Results is a transcription result for a span of audio.
type Results struct {
	Type        Type    `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Transcript is the best alternative of a Results message.
type Transcript struct {
	Text        string
	Confidence  float64
	IsFinal     bool
	SpeechFinal bool
}

// Best returns the top alternative. ok is false when the result carries no
// alternative or only an empty transcript.
func (r Results) Best() (t Transcript, ok bool) {
	if len(r.Channel.Alternatives) == 0 {
		return Transcript{}, false
	}
	alt := r.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return Transcript{}, false
	}
	return Transcript{
		Text:        alt.Transcript,
		Confidence:  alt.Confidence,
		IsFinal:     r.IsFinal,
		SpeechFinal: r.SpeechFinal,
	}, true
}

// ── Outbound payloads ──────────────────────────────────────────────────────────

// UpdatePrompt replaces the agent's instructions on an open connection.
type UpdatePrompt struct {
	Type   Type   `json:"type"`
	Prompt string `json:"prompt"`
}

// NewUpdatePrompt returns an UpdatePrompt message.
func NewUpdatePrompt(prompt string) UpdatePrompt {
	return UpdatePrompt{Type: TypeUpdatePrompt, Prompt: prompt}
}

// InjectUserMessage makes the agent respond as if the user had said Content.
type InjectUserMessage struct {
	Type    Type   `json:"type"`
	Content string `json:"content"`
}

// NewInjectUserMessage returns an InjectUserMessage message.
func NewInjectUserMessage(content string) InjectUserMessage {
	return InjectUserMessage{Type: TypeInjectUserMessage, Content: content}
}

// InjectAgentMessage makes the agent speak Message.
type InjectAgentMessage struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// NewInjectAgentMessage returns an InjectAgentMessage message.
func NewInjectAgentMessage(message string) InjectAgentMessage {
	return InjectAgentMessage{Type: TypeInjectAgentMessage, Message: message}
}

// Control is a message that carries nothing but its type (KeepAlive,
// CloseStream).
type Control struct {
	Type Type `json:"type"`
}

// KeepAlive returns a KeepAlive message.
func KeepAlive() Control { return Control{Type: TypeKeepAlive} }

// CloseStream returns a CloseStream message.
func CloseStream() Control { return Control{Type: TypeCloseStream} }

// ── Decoding ───────────────────────────────────────────────────────────────────

// Decode unmarshals data into a value of type T.
func Decode[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("protocol: decode %T: %w", v, err)
	}
	return v, nil
}

// TypeOf returns the "type" discriminator of a JSON message.
func TypeOf(data []byte) (Type, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("protocol: decode type: %w", err)
	}
	return head.Type, nil
}
