package protocol

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// AgentSettings is the configuration sent once per agent connection.
type AgentSettings struct {
	// Audio describes the encodings of the capture and playback streams.
	Audio AudioSettings `json:"audio" yaml:"audio"`

	// Agent selects the providers and the initial instructions.
	Agent AgentConfig `json:"agent" yaml:"agent"`

	// Experimental enables preview features on the service side.
	Experimental bool `json:"experimental,omitempty" yaml:"experimental"`
}

// AudioSettings holds the input and output encodings.
type AudioSettings struct {
	Input  AudioFormat `json:"input" yaml:"input"`
	Output AudioFormat `json:"output" yaml:"output"`
}

// AudioFormat is one audio stream encoding.
type AudioFormat struct {
	Encoding   string `json:"encoding" yaml:"encoding"`
	SampleRate int    `json:"sample_rate" yaml:"sample_rate"`
	Container  string `json:"container,omitempty" yaml:"container"`
}

// AgentConfig selects the listen, think and speak providers.
type AgentConfig struct {
	Language string       `json:"language,omitempty" yaml:"language"`
	Listen   ProviderSpec `json:"listen" yaml:"listen"`
	Think    ThinkConfig  `json:"think" yaml:"think"`
	Speak    ProviderSpec `json:"speak" yaml:"speak"`
	Greeting string       `json:"greeting,omitempty" yaml:"greeting"`
}

// ThinkConfig is the language model provider plus its instructions.
type ThinkConfig struct {
	Provider Provider `json:"provider" yaml:"provider"`
	Prompt   string   `json:"prompt,omitempty" yaml:"prompt"`
}

// ProviderSpec wraps a Provider under a "provider" key.
type ProviderSpec struct {
	Provider Provider `json:"provider" yaml:"provider"`
}

// Provider names a service-side model.
type Provider struct {
	Type        string   `json:"type" yaml:"type"`
	Model       string   `json:"model,omitempty" yaml:"model"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature"`
}

// DefaultAgentSettings returns settings for 16 kHz linear16 capture and
// 24 kHz linear16 playback.
func DefaultAgentSettings() AgentSettings {
	return AgentSettings{
		Audio: AudioSettings{
			Input:  AudioFormat{Encoding: "linear16", SampleRate: 16000},
			Output: AudioFormat{Encoding: "linear16", SampleRate: 24000, Container: "none"},
		},
		Agent: AgentConfig{
			Language: "en",
			Listen:   ProviderSpec{Provider: Provider{Type: "deepgram", Model: "nova-3"}},
			Think:    ThinkConfig{Provider: Provider{Type: "open_ai", Model: "gpt-4o-mini"}},
			Speak:    ProviderSpec{Provider: Provider{Type: "deepgram", Model: "aura-2-thalia-en"}},
		},
	}
}

// Validate reports missing required fields.
func (s AgentSettings) Validate() error {
	var errs []error
	if s.Audio.Input.Encoding == "" {
		errs = append(errs, errors.New("audio.input.encoding is required"))
	}
	if s.Audio.Input.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.input.sample_rate must be positive, got %d", s.Audio.Input.SampleRate))
	}
	if s.Audio.Output.Encoding == "" {
		errs = append(errs, errors.New("audio.output.encoding is required"))
	}
	if s.Audio.Output.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output.sample_rate must be positive, got %d", s.Audio.Output.SampleRate))
	}
	if s.Agent.Think.Provider.Type == "" {
		errs = append(errs, errors.New("agent.think.provider.type is required"))
	}
	return errors.Join(errs...)
}

// SettingsMessage is the wire form of the configuration handshake.
type SettingsMessage struct {
	Type Type `json:"type"`
	AgentSettings
}

// NewSettings wraps s into a Settings message.
func NewSettings(s AgentSettings) SettingsMessage {
	return SettingsMessage{Type: TypeSettings, AgentSettings: s}
}

// ── Transcription ──────────────────────────────────────────────────────────────

// TranscriptionOptions configures a streaming transcription connection. The
// options are encoded into the listen URL query when the connection is dialed.
type TranscriptionOptions struct {
	Model          string   `yaml:"model"`
	Language       string   `yaml:"language"`
	Encoding       string   `yaml:"encoding"`
	SampleRate     int      `yaml:"sample_rate"`
	Channels       int      `yaml:"channels"`
	Punctuate      bool     `yaml:"punctuate"`
	InterimResults bool     `yaml:"interim_results"`
	SmartFormat    bool     `yaml:"smart_format"`
	VADEvents      bool     `yaml:"vad_events"`
	UtteranceEndMs int      `yaml:"utterance_end_ms"`
	Endpointing    int      `yaml:"endpointing"`
	Keyterms       []string `yaml:"keyterms"`
}

// DefaultTranscriptionOptions returns nova-3 English at 16 kHz with interim
// results and voice activity events enabled.
func DefaultTranscriptionOptions() TranscriptionOptions {
	return TranscriptionOptions{
		Model:          "nova-3",
		Language:       "en",
		Encoding:       "linear16",
		SampleRate:     16000,
		Channels:       1,
		Punctuate:      true,
		InterimResults: true,
		VADEvents:      true,
		UtteranceEndMs: 1000,
	}
}

// ListenURL returns base with the options encoded as query parameters.
// Existing query parameters of base are preserved unless overridden.
func (o TranscriptionOptions) ListenURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("protocol: parse listen url: %w", err)
	}

	q := u.Query()
	setString := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	setInt := func(k string, v int) {
		if v > 0 {
			q.Set(k, strconv.Itoa(v))
		}
	}
	setBool := func(k string, v bool) {
		if v {
			q.Set(k, "true")
		}
	}

	setString("model", o.Model)
	setString("language", o.Language)
	setString("encoding", o.Encoding)
	setInt("sample_rate", o.SampleRate)
	setInt("channels", o.Channels)
	setBool("punctuate", o.Punctuate)
	setBool("interim_results", o.InterimResults)
	setBool("smart_format", o.SmartFormat)
	setBool("vad_events", o.VADEvents)
	setInt("utterance_end_ms", o.UtteranceEndMs)
	setInt("endpointing", o.Endpointing)
	if len(o.Keyterms) > 0 {
		q.Del("keyterm")
		for _, k := range o.Keyterms {
			q.Add("keyterm", k)
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}
