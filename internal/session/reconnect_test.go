package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// failNTimesStarter fails the first N Start calls, then succeeds.
type failNTimesStarter struct {
	failTimes int32
	count     atomic.Int32

	mu       sync.Mutex
	services []Service
}

func (s *failNTimesStarter) Start(_ context.Context, services ...Service) error {
	s.mu.Lock()
	s.services = append(s.services, services...)
	s.mu.Unlock()
	if n := s.count.Add(1); n <= s.failTimes {
		return errors.New("connection failed")
	}
	return nil
}

func (s *failNTimesStarter) Services() []Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Service(nil), s.services...)
}

func waitUntil(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestReconnector_Defaults(t *testing.T) {
	r := NewReconnector(ReconnectorConfig{Starter: &failNTimesStarter{}})

	if r.maxRetries != 10 {
		t.Errorf("expected default maxRetries=10, got %d", r.maxRetries)
	}
	if r.backoff != 1*time.Second {
		t.Errorf("expected default backoff=1s, got %v", r.backoff)
	}
	if r.maxBackoff != 30*time.Second {
		t.Errorf("expected default maxBackoff=30s, got %v", r.maxBackoff)
	}
}

func TestReconnector_ReconnectOnDisconnect(t *testing.T) {
	starter := &failNTimesStarter{}
	reconnected := make(chan Service, 1)

	r := NewReconnector(ReconnectorConfig{
		Starter:     starter,
		MaxRetries:  3,
		Backoff:     time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		OnReconnect: func(svc Service) { reconnected <- svc },
	})
	r.Monitor(t.Context())
	defer r.Stop()

	r.NotifyDisconnect(ServiceAgent)

	select {
	case svc := <-reconnected:
		if svc != ServiceAgent {
			t.Errorf("reconnected %q, want agent", svc)
		}
	case <-time.After(time.Second):
		t.Fatal("expected OnReconnect to be called")
	}
	if got := starter.Services(); len(got) != 1 || got[0] != ServiceAgent {
		t.Errorf("Start called with %v, want [agent]", got)
	}
}

func TestReconnector_ExponentialBackoff(t *testing.T) {
	starter := &failNTimesStarter{failTimes: 3}
	var reconnected atomic.Bool

	r := NewReconnector(ReconnectorConfig{
		Starter:     starter,
		MaxRetries:  5,
		Backoff:     time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		OnReconnect: func(Service) { reconnected.Store(true) },
	})
	r.Monitor(t.Context())
	defer r.Stop()

	r.NotifyDisconnect(ServiceTranscription)

	if !waitUntil(t, time.Second, reconnected.Load) {
		t.Fatal("expected successful reconnection after failures")
	}
	// 3 failures + 1 success.
	if got := starter.count.Load(); got != 4 {
		t.Errorf("expected 4 start attempts, got %d", got)
	}
	if r.Attempts() != 4 {
		t.Errorf("Attempts = %d, want 4", r.Attempts())
	}
}

func TestReconnector_MaxRetriesExhausted(t *testing.T) {
	starter := &failNTimesStarter{failTimes: 100}
	var reconnected atomic.Bool
	gaveUp := make(chan error, 1)

	r := NewReconnector(ReconnectorConfig{
		Starter:     starter,
		MaxRetries:  2,
		Backoff:     time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		OnReconnect: func(Service) { reconnected.Store(true) },
		OnGiveUp:    func(_ Service, err error) { gaveUp <- err },
	})
	r.Monitor(t.Context())
	defer r.Stop()

	r.NotifyDisconnect(ServiceAgent)

	select {
	case err := <-gaveUp:
		if err == nil {
			t.Error("OnGiveUp called with nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("expected OnGiveUp to be called")
	}
	if reconnected.Load() {
		t.Error("expected OnReconnect NOT to be called when all retries fail")
	}
	if got := starter.count.Load(); got != 2 {
		t.Errorf("expected 2 start attempts, got %d", got)
	}
}

func TestReconnector_StopHaltsRetries(t *testing.T) {
	starter := &failNTimesStarter{failTimes: 100}
	r := NewReconnector(ReconnectorConfig{
		Starter:    starter,
		MaxRetries: 100,
		Backoff:    20 * time.Millisecond,
	})
	r.Monitor(t.Context())
	r.NotifyDisconnect(ServiceAgent)

	waitUntil(t, time.Second, func() bool { return starter.count.Load() >= 1 })
	r.Stop()
	r.Stop()

	n := starter.count.Load()
	time.Sleep(60 * time.Millisecond)
	if got := starter.count.Load(); got > n+1 {
		t.Errorf("attempts continued after Stop: %d -> %d", n, got)
	}
}

func TestReconnector_NotifyDisconnectNonBlocking(t *testing.T) {
	r := NewReconnector(ReconnectorConfig{Starter: &failNTimesStarter{}})

	for range 5 {
		r.NotifyDisconnect(ServiceAgent)
		r.NotifyDisconnect(ServiceTranscription)
	}
}

func TestReconnector_DuplicateNotificationsCoalesce(t *testing.T) {
	tests := []struct {
		name     string
		notify   []Service
		wantAgt  int
		wantTran int
	}{
		{name: "single", notify: []Service{ServiceAgent}, wantAgt: 1},
		{name: "repeated agent", notify: []Service{ServiceAgent, ServiceAgent, ServiceAgent}, wantAgt: 1},
		{
			name:     "interleaved services",
			notify:   []Service{ServiceAgent, ServiceTranscription, ServiceAgent, ServiceTranscription},
			wantAgt:  1,
			wantTran: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &failNTimesStarter{}
			var reconnects atomic.Int32
			r := NewReconnector(ReconnectorConfig{
				Starter:     starter,
				Backoff:     time.Millisecond,
				OnReconnect: func(Service) { reconnects.Add(1) },
			})

			// Queue everything before the monitor drains the channel.
			for _, svc := range tt.notify {
				r.NotifyDisconnect(svc)
			}
			if !r.Queued(tt.notify[0]) {
				t.Fatalf("%s not queued", tt.notify[0])
			}

			r.Monitor(t.Context())
			defer r.Stop()

			want := int32(tt.wantAgt + tt.wantTran)
			if !waitUntil(t, time.Second, func() bool { return reconnects.Load() == want }) {
				t.Fatalf("reconnects = %d, want %d", reconnects.Load(), want)
			}
			// Give a stray duplicate cycle the chance to run.
			time.Sleep(20 * time.Millisecond)

			var agt, tran int
			for _, svc := range starter.Services() {
				switch svc {
				case ServiceAgent:
					agt++
				case ServiceTranscription:
					tran++
				}
			}
			if agt != tt.wantAgt || tran != tt.wantTran {
				t.Errorf("Start calls agent=%d transcription=%d, want %d/%d", agt, tran, tt.wantAgt, tt.wantTran)
			}
			if r.Queued(ServiceAgent) || r.Queued(ServiceTranscription) {
				t.Error("service still queued after its cycle ran")
			}
		})
	}
}

func TestReconnector_NotifyDuringCycleQueuesNext(t *testing.T) {
	starter := &failNTimesStarter{failTimes: 1}
	var reconnects atomic.Int32
	r := NewReconnector(ReconnectorConfig{
		Starter:     starter,
		Backoff:     50 * time.Millisecond,
		OnReconnect: func(Service) { reconnects.Add(1) },
	})
	r.Monitor(t.Context())
	defer r.Stop()

	r.NotifyDisconnect(ServiceAgent)
	// The first attempt fails and the cycle waits out its backoff.
	if !waitUntil(t, time.Second, func() bool { return starter.count.Load() == 1 }) {
		t.Fatal("first attempt never made")
	}
	r.NotifyDisconnect(ServiceAgent)

	if !waitUntil(t, 2*time.Second, func() bool { return reconnects.Load() == 2 }) {
		t.Fatalf("reconnects = %d, want 2", reconnects.Load())
	}
}
