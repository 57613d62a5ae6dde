package config

import "reflect"

// ConfigDiff describes what changed between two configs.
//
// Service changes are picked up by the next connection through the options
// snapshot. Session changes and everything in RestartRequired need a new
// process.
type ConfigDiff struct {
	AgentChanged         bool
	TranscriptionChanged bool
	SessionChanged       bool
	LogLevelChanged      bool
	NewLogLevel          LogLevel

	// RestartRequired lists the top-level sections whose changes are not
	// applied to a running process.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.AgentChanged && !d.TranscriptionChanged && !d.SessionChanged &&
		!d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.AgentChanged = !reflect.DeepEqual(old.Services.Agent, new.Services.Agent)
	d.TranscriptionChanged = !reflect.DeepEqual(old.Services.Transcription, new.Services.Transcription)
	d.SessionChanged = old.Session != new.Session

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.LogFormat != new.Server.LogFormat ||
		!reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Reconnect != new.Reconnect {
		d.RestartRequired = append(d.RestartRequired, "reconnect")
	}
	if !reflect.DeepEqual(old.Bus, new.Bus) {
		d.RestartRequired = append(d.RestartRequired, "bus")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}
