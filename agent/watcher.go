package agent

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/trustgate/domain"
	"go.pilab.hu/trustgate/errors"
	"go.pilab.hu/trustgate/internal/metrics"
)

// Default poll intervals. A backgrounded surface polls slower; revocation
// still propagates, just within the longer bound.
const (
	DefaultVisibleInterval = 30 * time.Second
	DefaultHiddenInterval  = 120 * time.Second
)

// Visibility of the hosting surface; drives the poll interval.
type Visibility int

const (
	Visible Visibility = iota
	Hidden
)

// WatcherState is the watcher's explicit state machine. Visibility changes
// and manual checks are transitions, not ad hoc timer juggling.
type WatcherState int

const (
	WatcherIdle WatcherState = iota
	WatcherScheduled
	WatcherChecking
)

// Watcher polls the device directory for revocation of the local device. It
// runs only while a session exists and the scope predicate holds, tolerates
// transient poll failures, and funnels any revocation signal into teardown.
type Watcher struct {
	ctx      context.Context
	provider domain.IdentityProvider
	session  *SessionState
	clock    clockwork.Clock
	teardown TeardownFunc
	// inScope gates polling to the surfaces where it matters (the protected
	// area). Nil means always in scope.
	inScope func() bool

	visibleEvery time.Duration
	hiddenEvery  time.Duration

	mu         sync.Mutex
	state      WatcherState
	visibility Visibility
	checking   bool
	timer      clockwork.Timer
	stopped    bool
}

// WatcherConfig bundles the optional knobs of a Watcher.
type WatcherConfig struct {
	Clock           clockwork.Clock
	VisibleInterval time.Duration
	HiddenInterval  time.Duration
	InScope         func() bool
}

func NewWatcher(ctx context.Context, provider domain.IdentityProvider, session *SessionState, teardown TeardownFunc, cfg WatcherConfig) *Watcher {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.VisibleInterval <= 0 {
		cfg.VisibleInterval = DefaultVisibleInterval
	}
	if cfg.HiddenInterval <= 0 {
		cfg.HiddenInterval = DefaultHiddenInterval
	}
	return &Watcher{
		ctx:          ctx,
		provider:     provider,
		session:      session,
		clock:        cfg.Clock,
		teardown:     teardown,
		inScope:      cfg.InScope,
		visibleEvery: cfg.VisibleInterval,
		hiddenEvery:  cfg.HiddenInterval,
	}
}

// Start schedules the first check. Idempotent on a running watcher.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.state != WatcherIdle {
		return
	}
	w.scheduleLocked()
}

// Stop halts polling permanently. An in-flight check is not cancelled, but
// its result is discarded.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.state = WatcherIdle
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// State returns the current machine state.
func (w *Watcher) State() WatcherState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SetVisibility recomputes the poll interval. The pending timer is re-armed
// so a surface coming back to the foreground tightens the bound immediately.
func (w *Watcher) SetVisibility(v Visibility) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.visibility == v {
		return
	}
	w.visibility = v
	if w.stopped || w.state != WatcherScheduled {
		return
	}
	w.scheduleLocked()
}

// CheckNow triggers an immediate out-of-cycle check, e.g. on window focus.
func (w *Watcher) CheckNow() {
	go w.runCheck()
}

func (w *Watcher) interval() time.Duration {
	if w.visibility == Hidden {
		return w.hiddenEvery
	}
	return w.visibleEvery
}

// scheduleLocked arms the timer for the current interval. Caller holds w.mu.
func (w *Watcher) scheduleLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.state = WatcherScheduled
	w.timer = w.clock.AfterFunc(w.interval(), w.runCheck)
}

func (w *Watcher) runCheck() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if w.checking {
		// Previous cycle still in flight: skip the work, keep the cadence.
		w.scheduleLocked()
		w.mu.Unlock()
		return
	}
	w.checking = true
	w.state = WatcherChecking
	w.mu.Unlock()

	revoked := w.check()

	w.mu.Lock()
	w.checking = false
	stopped := w.stopped
	if !stopped && !revoked {
		w.scheduleLocked()
	}
	w.mu.Unlock()

	if revoked && !stopped {
		w.Stop()
		metrics.RevocationsDetectedTotal.Inc()
		w.teardown("this device was signed out by the account owner")
	}
}

// check performs one poll cycle and reports whether the local device has
// been revoked. Transient failures are swallowed: a single failed poll must
// never stop the watcher or tear the session down.
func (w *Watcher) check() bool {
	if w.inScope != nil && !w.inScope() {
		return false
	}
	session := w.session.Current()
	if session == nil {
		return false
	}
	deviceID := w.session.DeviceID()
	if deviceID == "" {
		return false
	}

	metrics.DeviceChecksTotal.Inc()

	devices, err := w.provider.ListDevices(w.ctx, session.UserID)
	if err != nil {
		if errors.IsRevocation(err) {
			// Heuristic path: log the wording so false positives are
			// auditable.
			log.Warn().Err(err).Msg("Device lookup failed with revocation signal")
			return true
		}
		log.Debug().Err(err).Msg("Device check failed, will retry next cycle")
		return false
	}

	for _, d := range devices {
		if d.ID == deviceID {
			return d.Revoked()
		}
	}
	return false
}
