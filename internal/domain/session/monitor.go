// Package session implements the inactivity monitor that ends an
// authenticated session after a period without user input. It shows a
// grace-period warning with a countdown before logging out, and pings the
// backend periodically so an active session stays alive server side.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultTimeoutMinutes    = 15
	DefaultWarningSeconds    = 60
	DefaultHeartbeatInterval = 5 * time.Minute
	DefaultRequestTimeout    = 10 * time.Second
)

var (
	// ErrExpired is returned by actions attempted after the session expired.
	ErrExpired = errors.New("session expired")
	// ErrStopped is returned by actions attempted on a stopped or unstarted monitor.
	ErrStopped = errors.New("session monitor not running")
)

// State is the monitor's position in its state machine.
type State int

const (
	StateActive State = iota
	StateWarning
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// Activity is a kind of user input that counts as presence.
type Activity string

const (
	PointerDown Activity = "mousedown"
	KeyDown     Activity = "keydown"
	PointerMove Activity = "mousemove"
	Scroll      Activity = "scroll"
	TouchStart  Activity = "touchstart"
)

// Backend is the part of the API client the monitor calls. Both calls are
// best effort: their errors never change the state machine.
type Backend interface {
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
}

// TokenStore holds the bearer token cleared on expiry.
type TokenStore interface {
	Clear()
}

// Status is a snapshot of what the warning dialog shows.
type Status struct {
	State            State
	WarningVisible   bool
	SecondsRemaining int
}

// Options configures a Monitor. Zero values take the defaults.
type Options struct {
	TimeoutMinutes    int
	WarningSeconds    int
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration

	// OnTimeout runs once, after logout, when the session expires.
	OnTimeout func()
	// OnChange receives every state or countdown change. Calls are
	// serialized and arrive in the order the changes happened; a snapshot
	// that lost the race to a newer one is dropped rather than delivered
	// late. OnChange must not call back into the Monitor's action methods.
	OnChange func(Status)

	Clock Clock
}

func (o *Options) applyDefaults() {
	if o.TimeoutMinutes <= 0 {
		o.TimeoutMinutes = DefaultTimeoutMinutes
	}
	if o.WarningSeconds <= 0 {
		o.WarningSeconds = DefaultWarningSeconds
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
}

// WarningDelay is the inactivity span after which the warning appears. It
// is never negative, so a warning longer than the timeout shows at once.
func (o Options) WarningDelay() time.Duration {
	d := time.Duration(o.TimeoutMinutes)*time.Minute - time.Duration(o.WarningSeconds)*time.Second
	if d < 0 {
		return 0
	}
	return d
}

// Monitor owns every timer of one authenticated session. Timers armed by
// one reset carry that reset's generation; a callback whose generation is
// stale does nothing, so a reset is atomic even if an old timer already
// fired.
//
// Logout is optimistic: when the session expires the token is cleared and
// OnTimeout runs whether or not the server accepted the logout call.
type Monitor struct {
	backend Backend
	tokens  TokenStore
	opts    Options
	logger  zerolog.Logger

	mu          sync.Mutex
	started     bool
	stopped     bool
	state       State
	secondsLeft int
	gen         uint64
	seq         uint64

	notifyMu  sync.Mutex
	delivered uint64

	warningTimer   Timer
	countdownTimer Timer
	logoutTimer    Timer
	heartbeatTimer Timer

	done chan struct{}
}

func NewMonitor(backend Backend, tokens TokenStore, opts Options, logger zerolog.Logger) *Monitor {
	opts.applyDefaults()
	return &Monitor{
		backend:     backend,
		tokens:      tokens,
		opts:        opts,
		logger:      logger.With().Str("component", "session_monitor").Logger(),
		secondsLeft: opts.WarningSeconds,
		done:        make(chan struct{}),
	}
}

// Start arms the inactivity and heartbeat timers. Calling it again is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.state = StateActive
	m.rearmLocked()
	m.armHeartbeatLocked()
	st := m.changeLocked()
	m.mu.Unlock()

	m.logger.Info().
		Dur("warning_after", m.opts.WarningDelay()).
		Int("warning_seconds", m.opts.WarningSeconds).
		Msg("session monitor started")
	m.notify(st)
}

// Stop cancels every timer and detaches activity listeners. It is safe to
// call in any state and more than once; no callback runs afterwards.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.gen++
	m.clearTimersLocked()
	m.stopHeartbeatLocked()
	close(m.done)
	m.mu.Unlock()

	m.logger.Debug().Msg("session monitor stopped")
}

// Status returns the current snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Activity records user input. While the warning is visible input is
// ignored; only Continue brings the session back.
func (m *Monitor) Activity(kind Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.runningLocked() || m.state == StateWarning {
		return
	}
	m.rearmLocked()
	m.logger.Trace().Str("kind", string(kind)).Msg("activity")
}

// Listen feeds events into Activity until the monitor stops or events is
// closed.
func (m *Monitor) Listen(events <-chan Activity) {
	go func() {
		for {
			select {
			case <-m.done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				m.Activity(ev)
			}
		}
	}()
}

// Continue is the "Continue Session" action: a full reset back to active
// followed by a keep-alive ping. The ping result is ignored.
func (m *Monitor) Continue(ctx context.Context) error {
	m.mu.Lock()
	if err := m.actionableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	from := m.state
	m.state = StateActive
	m.rearmLocked()
	st := m.changeLocked()
	m.mu.Unlock()

	m.logger.Info().Str("from", from.String()).Msg("session continued")
	m.notify(st)
	m.ping(ctx)
	return nil
}

// SignOut ends the session immediately.
func (m *Monitor) SignOut(ctx context.Context) error {
	m.mu.Lock()
	if err := m.actionableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.expireLocked()
	st := m.changeLocked()
	m.mu.Unlock()

	m.logger.Info().Msg("session signed out")
	m.finishLogout(ctx, st)
	return nil
}

func (m *Monitor) actionableLocked() error {
	switch {
	case m.state == StateExpired:
		return ErrExpired
	case !m.started || m.stopped:
		return ErrStopped
	}
	return nil
}

func (m *Monitor) runningLocked() bool {
	return m.started && !m.stopped && m.state != StateExpired
}

// rearmLocked clears the warning, countdown and logout timers and arms a
// fresh warning timer under a new generation.
func (m *Monitor) rearmLocked() {
	m.clearTimersLocked()
	m.gen++
	m.secondsLeft = m.opts.WarningSeconds
	gen := m.gen
	m.warningTimer = m.opts.Clock.AfterFunc(m.opts.WarningDelay(), func() { m.showWarning(gen) })
}

func (m *Monitor) showWarning(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.runningLocked() || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.state = StateWarning
	m.secondsLeft = m.opts.WarningSeconds
	m.warningTimer = nil
	m.countdownTimer = m.opts.Clock.AfterFunc(time.Second, func() { m.tick(gen) })
	m.logoutTimer = m.opts.Clock.AfterFunc(time.Duration(m.opts.WarningSeconds)*time.Second, func() { m.timeout(gen) })
	st := m.changeLocked()
	m.mu.Unlock()

	m.logger.Info().Int("seconds_remaining", st.SecondsRemaining).Msg("session expiry warning")
	m.notify(st)
}

func (m *Monitor) tick(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.runningLocked() || m.state != StateWarning {
		m.mu.Unlock()
		return
	}
	if m.secondsLeft > 0 {
		m.secondsLeft--
	}
	if m.secondsLeft > 0 {
		m.countdownTimer = m.opts.Clock.AfterFunc(time.Second, func() { m.tick(gen) })
	} else {
		m.countdownTimer = nil
	}
	st := m.changeLocked()
	m.mu.Unlock()

	m.notify(st)
}

func (m *Monitor) timeout(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.runningLocked() || m.state != StateWarning {
		m.mu.Unlock()
		return
	}
	m.expireLocked()
	st := m.changeLocked()
	m.mu.Unlock()

	m.logger.Info().Msg("session expired after inactivity")
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.RequestTimeout)
	defer cancel()
	m.finishLogout(ctx, st)
}

// expireLocked moves to the terminal state. Only one caller can get here
// because every path checks runningLocked first under the same lock.
func (m *Monitor) expireLocked() {
	m.state = StateExpired
	m.secondsLeft = 0
	m.gen++
	m.clearTimersLocked()
	m.stopHeartbeatLocked()
}

func (m *Monitor) finishLogout(ctx context.Context, st change) {
	if err := m.backend.Logout(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("logout request failed, ending session locally")
	}
	if m.tokens != nil {
		m.tokens.Clear()
	}
	m.notify(st)

	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if !stopped && m.opts.OnTimeout != nil {
		m.opts.OnTimeout()
	}
}

func (m *Monitor) armHeartbeatLocked() {
	m.heartbeatTimer = m.opts.Clock.AfterFunc(m.opts.HeartbeatInterval, m.heartbeat)
}

func (m *Monitor) stopHeartbeatLocked() {
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
}

func (m *Monitor) heartbeat() {
	m.mu.Lock()
	if !m.runningLocked() {
		m.mu.Unlock()
		return
	}
	m.armHeartbeatLocked()
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.RequestTimeout)
	defer cancel()
	m.ping(ctx)
}

func (m *Monitor) ping(ctx context.Context) {
	if err := m.backend.Ping(ctx); err != nil {
		m.logger.Debug().Err(err).Msg("keep-alive ping failed")
	}
}

func (m *Monitor) clearTimersLocked() {
	for _, t := range []*Timer{&m.warningTimer, &m.countdownTimer, &m.logoutTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

func (m *Monitor) statusLocked() Status {
	return Status{
		State:            m.state,
		WarningVisible:   m.state == StateWarning,
		SecondsRemaining: m.secondsLeft,
	}
}

// change is a status snapshot stamped, under mu, with its position in the
// monitor's history.
type change struct {
	Status
	seq uint64
}

func (m *Monitor) changeLocked() change {
	m.seq++
	return change{Status: m.statusLocked(), seq: m.seq}
}

func (m *Monitor) notify(ch change) {
	if m.opts.OnChange == nil {
		return
	}
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if ch.seq <= m.delivered {
		return
	}
	m.delivered = ch.seq
	m.opts.OnChange(ch.Status)
}
