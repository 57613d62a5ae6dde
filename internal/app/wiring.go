package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voicelink/internal/config"
	"github.com/MrWong99/voicelink/internal/conversation"
	"github.com/MrWong99/voicelink/internal/resilience"
	"github.com/MrWong99/voicelink/internal/session"
	"github.com/MrWong99/voicelink/pkg/storage"
	"github.com/MrWong99/voicelink/pkg/storage/file"
	"github.com/MrWong99/voicelink/pkg/storage/memory"
	"github.com/MrWong99/voicelink/pkg/storage/postgres"
	"github.com/MrWong99/voicelink/pkg/storage/sqlite"
)

// SessionOptions converts the service section of cfg into coordinator
// options. Disabled services are left nil.
func SessionOptions(cfg *config.Config) session.Options {
	var o session.Options
	if a := cfg.Services.Agent; a.Enabled {
		o.Agent = &session.AgentService{URL: a.URL, APIKey: a.APIKey, Settings: a.Settings}
	}
	if t := cfg.Services.Transcription; t.Enabled {
		o.Transcription = &session.TranscriptionService{URL: t.URL, APIKey: t.APIKey, Options: t.Options}
	}
	return o
}

// OpenStorage creates the history backend selected by cfg. Remote and
// on-disk backends are guarded by a circuit breaker. The returned close
// function is never nil. A nil Storage means persistence is disabled.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (storage.Storage, func() error, error) {
	noop := func() error { return nil }
	if log == nil {
		log = slog.Default()
	}

	var (
		backend storage.Storage
		closer  = noop
	)
	switch cfg.Backend {
	case config.StorageNone, "":
		return nil, noop, nil
	case config.StorageMemory:
		return memory.New(), noop, nil
	case config.StorageFile:
		s, err := file.Open(cfg.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("app: open file storage: %w", err)
		}
		backend = s
	case config.StorageSQLite:
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("app: open sqlite storage: %w", err)
		}
		backend, closer = s, s.Close
	case config.StoragePostgres:
		s, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("app: open postgres storage: %w", err)
		}
		backend, closer = s, func() error { s.Close(); return nil }
	default:
		return nil, noop, fmt.Errorf("app: unknown storage backend %q", cfg.Backend)
	}

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:         string(cfg.Backend),
		MaxFailures:  cfg.Breaker.MaxFailures,
		ResetTimeout: cfg.Breaker.ResetTimeout,
		OnStateChange: func(from, to resilience.State) {
			log.Warn("storage circuit breaker state changed", "backend", cfg.Backend, "from", from, "to", to)
		},
	})
	return resilience.Guard(backend, breaker), closer, nil
}

// History reads the persisted conversation under key. Unlike a running
// session, which starts empty on failure, it reports storage errors.
func History(ctx context.Context, s storage.Storage, key string) ([]conversation.Message, error) {
	cs := conversation.New(s, conversation.WithKey(key))
	cs.Restore(ctx)
	if err := cs.Err(); err != nil {
		return nil, err
	}
	return cs.History(), nil
}

// ClearHistory removes the persisted conversation under key.
func ClearHistory(ctx context.Context, s storage.Storage, key string) error {
	cs := conversation.New(s, conversation.WithKey(key))
	cs.Clear(ctx)
	return cs.Err()
}
