// Package bus publishes session events to NATS so other processes can follow
// a voice session without being part of it.
package bus

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Config holds the NATS connection settings.
type Config struct {
	Servers        []string
	Name           string
	Username       string
	Password       string
	Token          string
	TLSInsecure    bool
	ConnectTimeout time.Duration
}

// Publisher sends a payload on a subject. [*Client] and *nats.Conn
// implement it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var (
	_ Publisher = (*Client)(nil)
	_ Publisher = (*nats.Conn)(nil)
)

// Client wraps a NATS connection.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

// Connect dials the configured servers.
func Connect(cfg Config, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("bus: no NATS servers configured")
	}
	if log == nil {
		log = slog.Default()
	}

	name := cfg.Name
	if name == "" {
		name = "voicelink"
	}
	options := []nats.Option{nats.Name(name)}
	if cfg.ConnectTimeout > 0 {
		options = append(options, nats.Timeout(cfg.ConnectTimeout))
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect to nats: %w", err)
	}
	log.Info("connected to NATS", slog.String("servers", url))
	return &Client{conn: conn, log: log}, nil
}

// Publish implements [Publisher].
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Healthy reports whether the connection is up.
func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// Conn returns the underlying connection.
func (c *Client) Conn() *nats.Conn { return c.conn }

// Close drains pending messages and closes the connection. Safe on a nil
// client.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.log.Info("closing NATS connection")
	_ = c.conn.Drain()
	c.conn.Close()
}
