package agent

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/trustgate/domain"
)

// DefaultGracePeriod is how long before credential expiry the scheduler
// re-validates.
const DefaultGracePeriod = 5 * time.Second

// AuthEvent mirrors the identity provider's auth event stream. Observing any
// of them re-arms the scheduler against the then-current session.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "signed_in"
	EventSignedOut      AuthEvent = "signed_out"
	EventTokenRefreshed AuthEvent = "token_refreshed"
	EventUserUpdated    AuthEvent = "user_updated"
)

// TeardownFunc is invoked when the session can no longer be trusted. All
// invalidation paths funnel into the one broadcaster behind it.
type TeardownFunc func(reason string)

// Scheduler proactively re-validates the credential shortly before it
// expires. It holds at most one armed timer; re-arming cancels any pending
// one first, so a refreshed expiry never produces a spurious extra fire.
type Scheduler struct {
	ctx      context.Context
	provider domain.IdentityProvider
	session  *SessionState
	clock    clockwork.Clock
	grace    time.Duration
	teardown TeardownFunc

	mu      sync.Mutex
	timer   clockwork.Timer
	stopped bool
}

// NewScheduler creates a Scheduler. A non-positive grace falls back to
// DefaultGracePeriod.
func NewScheduler(ctx context.Context, provider domain.IdentityProvider, session *SessionState, clock clockwork.Clock, grace time.Duration, teardown TeardownFunc) *Scheduler {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		ctx:      ctx,
		provider: provider,
		session:  session,
		clock:    clock,
		grace:    grace,
		teardown: teardown,
	}
}

// Track arms the timer for the given expiry, cancelling any pending timer.
// An expiry already inside the grace window fires the handler immediately.
func (s *Scheduler) Track(expiresAt time.Time) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.disarmLocked()

	fireIn := expiresAt.Add(-s.grace).Sub(s.clock.Now())
	if fireIn <= 0 {
		s.mu.Unlock()
		go s.fire()
		return
	}

	s.timer = s.clock.AfterFunc(fireIn, s.fire)
	s.mu.Unlock()

	log.Debug().
		Time("expires_at", expiresAt).
		Dur("fire_in", fireIn).
		Msg("Credential expiry timer armed")
}

// Observe re-arms the scheduler in response to a provider auth event. With no
// current session (sign-out observed) it disarms instead.
func (s *Scheduler) Observe(event AuthEvent) {
	session := s.session.Current()
	if session == nil || event == EventSignedOut {
		s.Disarm()
		return
	}
	s.Track(session.ExpiresAt)
}

// Disarm cancels any pending timer without stopping the scheduler.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

// Stop cancels any pending timer permanently. A stopped scheduler never
// fires again, so teardown cannot run against a dismantled agent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.disarmLocked()
}

func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	session := s.session.Current()
	if session == nil {
		// Signed out between arming and firing; nothing to renew.
		return
	}

	renewed, err := s.provider.RefreshSession(s.ctx, session.Tokens.RefreshToken)
	if err != nil || renewed == nil {
		log.Warn().Err(err).Msg("Credential re-validation failed, tearing down session")
		s.Stop()
		s.teardown("your session expired and could not be renewed")
		return
	}

	s.session.Replace(renewed)
	s.Track(renewed.ExpiresAt)
}
