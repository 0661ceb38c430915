package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/propdesk/agent-console/pkg/metrics"
)

// SignalState names the alert signal's two states.
type SignalState string

const (
	SignalIdle    SignalState = "idle"
	SignalLooping SignalState = "looping"
)

const defaultAlertInterval = 3 * time.Second

// Player replays the alert once per loop iteration. Implementations relay a
// sound event to attached UI clients or drive a local audio device.
type Player interface {
	Play(ctx context.Context)
}

// PlayerFunc adapts a plain function to the Player interface.
type PlayerFunc func(ctx context.Context)

// Play implements Player.
func (f PlayerFunc) Play(ctx context.Context) { f(ctx) }

// Signal is the Idle/Looping alert state machine. While looping it replays
// the alert on a fixed interval until the aggregate count reaches zero or
// the agent goes inactive. The loop is stopped through a context, so stop
// latency is bounded by one interval.
type Signal struct {
	mu       sync.Mutex
	state    SignalState
	player   Player
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	log      *zap.Logger
}

// NewSignal constructs an idle alert signal. A nil player disables playback
// but keeps the state machine observable.
func NewSignal(player Player, interval time.Duration, log *zap.Logger) *Signal {
	if interval <= 0 {
		interval = defaultAlertInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Signal{
		state:    SignalIdle,
		player:   player,
		interval: interval,
		log:      log,
	}
}

// State returns the current signal state.
func (s *Signal) State() SignalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Evaluate reconciles the signal with the store's aggregate count and the
// agent's presence. The gate argument reports whether any item that triggered
// this evaluation belongs to an enabled category; disabled categories never
// start the loop, whether their items arrived live or from a pending poll.
// The gate only controls starting. A running loop stops solely on an empty
// store or an inactive agent.
func (s *Signal) Evaluate(total int, active bool, gate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == SignalIdle && total > 0 && active && gate:
		s.startLocked()
	case s.state == SignalLooping && (total == 0 || !active):
		s.stopLocked()
	}
}

// Stop forces the signal idle, used during shutdown.
func (s *Signal) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SignalLooping {
		s.stopLocked()
	}
}

// Wait blocks until the current loop goroutine exits, primarily for tests.
func (s *Signal) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Signal) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = SignalLooping
	metrics.AlertTransitions.WithLabelValues(string(SignalLooping)).Inc()
	s.log.Debug("alert looping")

	go s.loop(ctx, s.done)
}

func (s *Signal) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = SignalIdle
	metrics.AlertTransitions.WithLabelValues(string(SignalIdle)).Inc()
	s.log.Debug("alert idle")
}

func (s *Signal) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Fire immediately so the first alert is not delayed by one interval.
	s.play(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.play(ctx)
		}
	}
}

func (s *Signal) play(ctx context.Context) {
	if s.player == nil || ctx.Err() != nil {
		return
	}
	s.player.Play(ctx)
}
