package agent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/trustgate/domain"
	"go.pilab.hu/trustgate/internal/metrics"
	"go.pilab.hu/trustgate/signalbus"
)

// Broadcaster is the single teardown path. Every invalidation signal funnels
// into SignOut, and a once-guard collapses concurrent triggers into one
// execution.
//
// The guard is intentionally never reset within the agent's lifetime: the
// navigation at the end is expected to end this context anyway, and "can't
// retry sign-out here" is a safer failure mode than "double-fired teardown".
type Broadcaster struct {
	provider domain.IdentityProvider
	session  *SessionState
	bus      signalbus.Bus
	// clearSession calls the session issuance service's clear operation.
	clearSession func(ctx context.Context) error
	// navigate sends the user to the session-ended surface with the reason.
	navigate func(reason string)

	once sync.Once
}

func NewBroadcaster(provider domain.IdentityProvider, session *SessionState, bus signalbus.Bus, clearSession func(ctx context.Context) error, navigate func(reason string)) *Broadcaster {
	return &Broadcaster{
		provider:     provider,
		session:      session,
		bus:          bus,
		clearSession: clearSession,
		navigate:     navigate,
	}
}

// SignOut tears the session down: provider sign-out, cookie clear, sign-out
// flag broadcast, navigation. The first two steps are best-effort; the flag
// write and navigation always run. Within this agent, cookie mutations
// happen-before the navigation, so no request issued from the session-ended
// surface can carry a stale authenticated cookie.
func (b *Broadcaster) SignOut(ctx context.Context, reason string) {
	b.once.Do(func() {
		log.Info().Str("reason", reason).Msg("Remote sign-out triggered")

		if session := b.session.Current(); session != nil {
			if err := b.provider.SignOut(ctx, session.Tokens.AccessToken); err != nil {
				log.Warn().Err(err).Msg("Provider sign-out failed, continuing teardown")
			}
		}

		if b.clearSession != nil {
			if err := b.clearSession(ctx); err != nil {
				log.Warn().Err(err).Msg("Session cookie clear failed, continuing teardown")
			}
		}

		flag := domain.RemoteSignOutFlag{Reason: reason, WrittenAt: time.Now().UTC()}
		if err := b.bus.Publish(ctx, flag); err != nil {
			log.Warn().Err(err).Msg("Sign-out flag broadcast failed")
		}

		b.session.Clear()
		metrics.TeardownsTotal.Inc()

		if b.navigate != nil {
			b.navigate(reason)
		}
	})
}

// Teardown adapts the broadcaster to the TeardownFunc the scheduler and
// watcher expect.
func (b *Broadcaster) Teardown(ctx context.Context) TeardownFunc {
	return func(reason string) {
		b.SignOut(ctx, reason)
	}
}
