package session

import (
	"fmt"
	"net/http"

	"github.com/MrWong99/voicelink/pkg/transport"
)

// Default service endpoints.
const (
	DefaultAgentURL  = "wss://agent.deepgram.com/v1/agent/converse"
	DefaultListenURL = "wss://api.deepgram.com/v1/listen"
)

// Dialer creates unopened connections. The coordinator calls Connect itself.
type Dialer interface {
	Dial(svc Service, url string, header http.Header) transport.Conn
}

// DialerFunc adapts a function to [Dialer].
type DialerFunc func(svc Service, url string, header http.Header) transport.Conn

// Dial implements [Dialer].
func (f DialerFunc) Dial(svc Service, url string, header http.Header) transport.Conn {
	return f(svc, url, header)
}

// WebSocketDialer returns a [Dialer] producing [transport.WebSocket]
// connections. opts are applied to every connection before the auth header.
func WebSocketDialer(opts ...transport.Option) Dialer {
	return DialerFunc(func(_ Service, url string, header http.Header) transport.Conn {
		all := append(append([]transport.Option(nil), opts...), transport.WithHeader(header))
		return transport.NewWebSocket(url, all...)
	})
}

// endpoint resolves the URL and headers used to dial svc with o.
func (o Options) endpoint(svc Service) (string, http.Header, error) {
	switch svc {
	case ServiceAgent:
		if o.Agent == nil {
			return "", nil, &ConfigurationError{Service: svc}
		}
		url := o.Agent.URL
		if url == "" {
			url = DefaultAgentURL
		}
		return url, authHeader(o.Agent.APIKey), nil

	case ServiceTranscription:
		if o.Transcription == nil {
			return "", nil, &ConfigurationError{Service: svc}
		}
		base := o.Transcription.URL
		if base == "" {
			base = DefaultListenURL
		}
		url, err := o.Transcription.Options.ListenURL(base)
		if err != nil {
			return "", nil, fmt.Errorf("session: transcription url: %w", err)
		}
		return url, authHeader(o.Transcription.APIKey), nil

	default:
		return "", nil, fmt.Errorf("session: unknown service %q", svc)
	}
}

func authHeader(key string) http.Header {
	h := make(http.Header)
	if key != "" {
		h.Set("Authorization", "Token "+key)
	}
	return h
}
