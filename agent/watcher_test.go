package agent

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/trustgate/domain"
	"go.pilab.hu/trustgate/internal/mocks"
)

func watcherSession(deviceID string) *SessionState {
	session := NewSessionState(deviceID)
	session.Replace(&domain.Session{
		Tokens:    domain.SessionTokens{AccessToken: "at", RefreshToken: "rt"},
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	return session
}

func TestWatcherDetectsRevocation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	session := watcherSession("device-1")
	revokedAt := time.Now()

	provider := new(mocks.IdentityProvider)
	provider.On("ListDevices", mock.Anything, "user-1").
		Return([]*domain.Device{
			{ID: "device-2", UserID: "user-1"},
			{ID: "device-1", UserID: "user-1", RevokedAt: &revokedAt},
		}, nil).Once()

	torndown := make(chan string, 1)
	watcher := NewWatcher(context.Background(), provider, session, func(reason string) {
		torndown <- reason
	}, WatcherConfig{Clock: clock})

	watcher.Start()
	require.Equal(t, WatcherScheduled, watcher.State())
	clock.BlockUntil(1)
	clock.Advance(DefaultVisibleInterval)

	select {
	case reason := <-torndown:
		assert.Contains(t, reason, "signed out")
	case <-time.After(2 * time.Second):
		t.Fatal("revocation did not trigger teardown")
	}
	assert.Equal(t, WatcherIdle, watcher.State())
	provider.AssertExpectations(t)
}

func TestWatcherToleratesTransientFailures(t *testing.T) {
	clock := clockwork.NewFakeClock()
	session := watcherSession("device-1")
	revokedAt := time.Now()

	provider := new(mocks.IdentityProvider)
	provider.On("ListDevices", mock.Anything, "user-1").
		Return(nil, stderrors.New("connection refused")).Once()
	provider.On("ListDevices", mock.Anything, "user-1").
		Return([]*domain.Device{{ID: "device-1", UserID: "user-1", RevokedAt: &revokedAt}}, nil).Once()

	torndown := make(chan string, 1)
	watcher := NewWatcher(context.Background(), provider, session, func(reason string) {
		torndown <- reason
	}, WatcherConfig{Clock: clock})
	defer watcher.Stop()

	watcher.Start()
	clock.BlockUntil(1)
	clock.Advance(DefaultVisibleInterval)

	// The failed poll reschedules instead of tearing down.
	require.Eventually(t, func() bool {
		return watcher.State() == WatcherScheduled
	}, 2*time.Second, 10*time.Millisecond)
	select {
	case <-torndown:
		t.Fatal("a transient poll failure must not tear the session down")
	default:
	}

	clock.BlockUntil(1)
	clock.Advance(DefaultVisibleInterval)
	select {
	case <-torndown:
	case <-time.After(2 * time.Second):
		t.Fatal("revocation on the next cycle was missed")
	}
	provider.AssertExpectations(t)
}

func TestWatcherRevocationFlavoredError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	session := watcherSession("device-1")

	provider := new(mocks.IdentityProvider)
	provider.On("ListDevices", mock.Anything, "user-1").
		Return(nil, stderrors.New("403: device was revoked by account owner")).Once()

	torndown := make(chan string, 1)
	watcher := NewWatcher(context.Background(), provider, session, func(reason string) {
		torndown <- reason
	}, WatcherConfig{Clock: clock})

	watcher.Start()
	clock.BlockUntil(1)
	clock.Advance(DefaultVisibleInterval)

	select {
	case <-torndown:
	case <-time.After(2 * time.Second):
		t.Fatal("revocation-flavored error did not trigger teardown")
	}
}

func TestWatcherVisibility(t *testing.T) {
	clock := clockwork.NewFakeClock()
	session := watcherSession("device-1")

	polled := make(chan struct{}, 4)
	provider := new(mocks.IdentityProvider)
	provider.On("ListDevices", mock.Anything, "user-1").
		Run(func(mock.Arguments) { polled <- struct{}{} }).
		Return([]*domain.Device{{ID: "device-1", UserID: "user-1"}}, nil)

	watcher := NewWatcher(context.Background(), provider, session, nil, WatcherConfig{Clock: clock})
	defer watcher.Stop()

	watcher.Start()
	clock.BlockUntil(1)
	watcher.SetVisibility(Hidden)

	// The visible-cadence tick passes without a poll.
	clock.Advance(DefaultVisibleInterval)
	select {
	case <-polled:
		t.Fatal("hidden surface polled at the visible cadence")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(DefaultHiddenInterval - DefaultVisibleInterval)
	select {
	case <-polled:
	case <-time.After(2 * time.Second):
		t.Fatal("hidden cadence did not poll at the longer interval")
	}
}

func TestWatcherSkipsOverlappingChecks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	session := watcherSession("device-1")

	release := make(chan struct{})
	provider := new(mocks.IdentityProvider)
	provider.On("ListDevices", mock.Anything, "user-1").
		Run(func(mock.Arguments) { <-release }).
		Return([]*domain.Device{{ID: "device-1", UserID: "user-1"}}, nil).Once()

	watcher := NewWatcher(context.Background(), provider, session, nil, WatcherConfig{Clock: clock})
	defer watcher.Stop()

	watcher.CheckNow()
	require.Eventually(t, func() bool {
		return watcher.State() == WatcherChecking
	}, 2*time.Second, 10*time.Millisecond)

	// A second trigger while the first is in flight only reschedules.
	watcher.CheckNow()
	require.Eventually(t, func() bool {
		return watcher.State() == WatcherScheduled || watcher.State() == WatcherChecking
	}, 2*time.Second, 10*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		return watcher.State() == WatcherScheduled
	}, 2*time.Second, 10*time.Millisecond)
	provider.AssertNumberOfCalls(t, "ListDevices", 1)
}

func TestWatcherScopeAndSessionGates(t *testing.T) {
	t.Run("Out of scope skips the poll", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		provider := new(mocks.IdentityProvider)
		watcher := NewWatcher(context.Background(), provider, watcherSession("device-1"), nil, WatcherConfig{
			Clock:   clock,
			InScope: func() bool { return false },
		})
		defer watcher.Stop()

		watcher.Start()
		clock.BlockUntil(1)
		clock.Advance(DefaultVisibleInterval)

		require.Eventually(t, func() bool {
			return watcher.State() == WatcherScheduled
		}, 2*time.Second, 10*time.Millisecond)
		provider.AssertNotCalled(t, "ListDevices", mock.Anything, mock.Anything)
	})

	t.Run("No session skips the poll", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		provider := new(mocks.IdentityProvider)
		watcher := NewWatcher(context.Background(), provider, NewSessionState("device-1"), nil, WatcherConfig{Clock: clock})
		defer watcher.Stop()

		watcher.Start()
		clock.BlockUntil(1)
		clock.Advance(DefaultVisibleInterval)

		require.Eventually(t, func() bool {
			return watcher.State() == WatcherScheduled
		}, 2*time.Second, 10*time.Millisecond)
		provider.AssertNotCalled(t, "ListDevices", mock.Anything, mock.Anything)
	})

	t.Run("No device id skips the poll", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		provider := new(mocks.IdentityProvider)
		session := NewSessionState("")
		session.Replace(&domain.Session{UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)})
		watcher := NewWatcher(context.Background(), provider, session, nil, WatcherConfig{Clock: clock})
		defer watcher.Stop()

		watcher.Start()
		clock.BlockUntil(1)
		clock.Advance(DefaultVisibleInterval)

		require.Eventually(t, func() bool {
			return watcher.State() == WatcherScheduled
		}, 2*time.Second, 10*time.Millisecond)
		provider.AssertNotCalled(t, "ListDevices", mock.Anything, mock.Anything)
	})
}
