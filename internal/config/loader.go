package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], expands
// ${VAR} references from the environment, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. With no arguments ".env" is tried.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load env file %q: %w", p, err)
		}
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${NAME} with the value of the environment variable NAME.
// Unset variables expand to the empty string. A bare $ is left alone.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Services
	if cfg.Services.Agent.Enabled {
		if err := cfg.Services.Agent.Settings.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("services.agent.settings: %w", err))
		}
	}
	if cfg.Services.Transcription.Enabled {
		if cfg.Services.Transcription.Options.SampleRate < 0 {
			errs = append(errs, fmt.Errorf("services.transcription.options.sample_rate must not be negative, got %d", cfg.Services.Transcription.Options.SampleRate))
		}
	}

	// Session
	if cfg.Session.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.idle_timeout must not be negative, got %s", cfg.Session.IdleTimeout))
	}
	if cfg.Session.KeepAliveInterval < 0 {
		errs = append(errs, fmt.Errorf("session.keepalive_interval must not be negative, got %s", cfg.Session.KeepAliveInterval))
	}
	if cfg.Session.HistoryKey == "" {
		errs = append(errs, errors.New("session.history_key must not be empty"))
	}

	// Storage
	switch b := cfg.Storage.Backend; {
	case !b.IsValid():
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: none, memory, file, sqlite, postgres", b))
	case (b == StorageFile || b == StorageSQLite) && cfg.Storage.Path == "":
		errs = append(errs, fmt.Errorf("storage.path is required when backend is %s", b))
	case b == StoragePostgres && cfg.Storage.DSN == "":
		errs = append(errs, errors.New("storage.dsn is required when backend is postgres"))
	}
	if cfg.Storage.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("storage.breaker.max_failures must not be negative, got %d", cfg.Storage.Breaker.MaxFailures))
	}

	// Reconnect
	if cfg.Reconnect.Enabled && cfg.Reconnect.Backoff > 0 && cfg.Reconnect.MaxBackoff > 0 &&
		cfg.Reconnect.MaxBackoff < cfg.Reconnect.Backoff {
		errs = append(errs, fmt.Errorf("reconnect.max_backoff %s is below reconnect.backoff %s", cfg.Reconnect.MaxBackoff, cfg.Reconnect.Backoff))
	}

	// Audio
	if cfg.Audio.Chunk <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk must be positive, got %s", cfg.Audio.Chunk))
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}
