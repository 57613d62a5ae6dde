package protocol_test

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/MrWong99/voicelink/pkg/protocol"
)

func TestTypeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		want    protocol.Type
		wantErr bool
	}{
		{name: "known", data: `{"type":"AgentThinking"}`, want: protocol.TypeAgentThinking},
		{name: "unknown kept verbatim", data: `{"type":"SomethingNew","x":1}`, want: "SomethingNew"},
		{name: "missing type", data: `{"role":"user"}`, want: ""},
		{name: "not json", data: `hello`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := protocol.TypeOf([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("TypeOf = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestDecode_ConversationText(t *testing.T) {
	t.Parallel()

	msg, err := protocol.Decode[protocol.ConversationText]([]byte(
		`{"type":"ConversationText","role":"assistant","content":"Hello there","extra":true}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Role != protocol.RoleAssistant || msg.Content != "Hello there" {
		t.Errorf("got %+v", msg)
	}
}

func TestDecode_Error(t *testing.T) {
	t.Parallel()

	_, err := protocol.Decode[protocol.AgentStateChanged]([]byte(`{"type":`))
	if err == nil {
		t.Fatal("expected error for truncated payload")
	}
	if !strings.Contains(err.Error(), "protocol: decode") {
		t.Errorf("error %q lacks package prefix", err)
	}
}

func TestResults_Best(t *testing.T) {
	t.Parallel()

	r, err := protocol.Decode[protocol.Results]([]byte(`{
		"type":"Results","is_final":true,"speech_final":false,
		"channel":{"alternatives":[{"transcript":"open the door","confidence":0.93}]}
	}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	best, ok := r.Best()
	if !ok {
		t.Fatal("Best reported no transcript")
	}
	if best.Text != "open the door" || !best.IsFinal || best.SpeechFinal {
		t.Errorf("Best = %+v", best)
	}

	empty, _ := protocol.Decode[protocol.Results]([]byte(`{"type":"Results","channel":{"alternatives":[{"transcript":""}]}}`))
	if _, ok := empty.Best(); ok {
		t.Error("empty transcript should not be reported")
	}
}

func TestServerError_Text(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   protocol.ServerError
		want string
	}{
		{protocol.ServerError{Type: protocol.TypeError, Description: "bad settings", Message: "m"}, "bad settings"},
		{protocol.ServerError{Type: protocol.TypeError, Message: "m"}, "m"},
		{protocol.ServerError{Type: protocol.TypeWarning}, "Warning"},
	}
	for _, tt := range tests {
		if got := tt.in.Text(); got != tt.want {
			t.Errorf("Text() = %q; want %q", got, tt.want)
		}
	}
}

func TestNewSettings_WireShape(t *testing.T) {
	t.Parallel()

	s := protocol.DefaultAgentSettings()
	s.Agent.Think.Prompt = "You are a concierge."
	data, err := json.Marshal(protocol.NewSettings(s))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["type"] != "Settings" {
		t.Errorf("type = %v; want Settings", got["type"])
	}
	agent, ok := got["agent"].(map[string]any)
	if !ok {
		t.Fatalf("agent field missing: %s", data)
	}
	think := agent["think"].(map[string]any)
	if think["prompt"] != "You are a concierge." {
		t.Errorf("think.prompt = %v", think["prompt"])
	}
	audio := got["audio"].(map[string]any)
	input := audio["input"].(map[string]any)
	if input["sample_rate"] != float64(16000) {
		t.Errorf("audio.input.sample_rate = %v", input["sample_rate"])
	}
}

func TestAgentSettings_Validate(t *testing.T) {
	t.Parallel()

	if err := protocol.DefaultAgentSettings().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	var empty protocol.AgentSettings
	err := empty.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"audio.input.encoding", "audio.output.sample_rate", "agent.think.provider.type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestTranscriptionOptions_ListenURL(t *testing.T) {
	t.Parallel()

	opts := protocol.DefaultTranscriptionOptions()
	opts.Keyterms = []string{"Eldrinax", "voicelink"}

	raw, err := opts.ListenURL("wss://api.example.com/v1/listen?tag=demo")
	if err != nil {
		t.Fatalf("ListenURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	q := u.Query()

	checks := map[string]string{
		"model":            "nova-3",
		"language":         "en",
		"encoding":         "linear16",
		"sample_rate":      "16000",
		"interim_results":  "true",
		"vad_events":       "true",
		"utterance_end_ms": "1000",
		"tag":              "demo",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("query %s = %q; want %q", k, got, want)
		}
	}
	if q.Has("smart_format") {
		t.Error("smart_format should be omitted when false")
	}
	if got := q["keyterm"]; len(got) != 2 || got[0] != "Eldrinax" {
		t.Errorf("keyterm = %v", got)
	}
}

func TestTranscriptionOptions_ListenURLInvalidBase(t *testing.T) {
	t.Parallel()

	if _, err := protocol.DefaultTranscriptionOptions().ListenURL("://bad"); err == nil {
		t.Fatal("expected error for invalid base URL")
	}
}
