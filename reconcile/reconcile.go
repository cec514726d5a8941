// Package reconcile converges a locally-held user profile with the backend
// after a Stripe checkout. The webhook writes the upgrade asynchronously and
// can lag the redirect back to the app by several seconds, so a bounded poll
// loop re-fetches the profile until it looks upgraded or a ceiling is hit.
package reconcile

import (
	"sync"
	"time"

	"expense-backend/models"
)

type State string

const (
	StateIdle      State = "idle"
	StateSyncing   State = "syncing"
	StateConverged State = "converged"
	StateTimedOut  State = "timed_out"
)

const (
	DefaultInterval = 2500 * time.Millisecond
	DefaultTimeout  = 90 * time.Second
)

// FetchFunc loads the authoritative profile.
type FetchFunc func() (models.User, error)

// Converged reports whether the profile reflects a completed upgrade.
func Converged(u models.User) bool {
	return u.PlanID != models.PlanFree || u.MonthlyDocsLimit > 0
}

// Controller owns at most one polling loop at a time. Start cancels any
// previous loop before scheduling a new one; Stop, timeout and convergence
// all release the loop exactly once.
type Controller struct {
	fetch    FetchFunc
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	state   State
	profile models.User
	loaded  bool
	stop    chan struct{} // owned by the active loop; nil when no loop runs
}

func NewController(fetch FetchFunc, interval, timeout time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Controller{fetch: fetch, interval: interval, timeout: timeout, state: StateIdle}
}

// Start enters Syncing and begins polling. A loop already in flight is
// cancelled first so two loops never double-fetch.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	stop := make(chan struct{})
	c.stop = stop
	c.state = StateSyncing
	c.mu.Unlock()

	go c.run(stop)
}

func (c *Controller) run(stop chan struct{}) {
	// First fetch happens immediately; the redirect often lands after the
	// webhook has already been processed.
	if c.poll(stop) {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	for {
		select {
		case <-stop:
			return
		case <-deadline.C:
			c.finish(stop, StateTimedOut)
			return
		case <-ticker.C:
			if c.poll(stop) {
				return
			}
		}
	}
}

// poll runs one fetch and returns true when the loop should end.
func (c *Controller) poll(stop chan struct{}) bool {
	u, err := c.fetch()
	if err != nil {
		// Transient fetch failures are absorbed by the cadence.
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != stop {
		// A newer loop took over, or Stop ran. Drop the result.
		return true
	}
	c.profile = u
	c.loaded = true
	if Converged(u) {
		c.state = StateConverged
		c.stop = nil
		return true
	}
	return false
}

func (c *Controller) finish(stop chan struct{}, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == stop {
		c.state = s
		c.stop = nil
	}
}

// CheckNow performs exactly one extra fetch outside the interval. It does
// not reset the timeout budget. Usable in any state; while Syncing a
// converged result ends the loop.
func (c *Controller) CheckNow() (models.User, error) {
	u, err := c.fetch()
	if err != nil {
		return models.User{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = u
	c.loaded = true
	// A manual check can also rescue a timed-out session: the poll loop is
	// gone by then, but a fresh profile that satisfies the predicate still
	// means the backend caught up.
	if (c.state == StateSyncing || c.state == StateTimedOut) && Converged(u) {
		c.state = StateConverged
		if c.stop != nil {
			close(c.stop)
			c.stop = nil
		}
	}
	return u, nil
}

// Stop releases the poll loop on disposal. The last fetched profile stays
// available; state returns to Idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.state == StateSyncing {
		c.state = StateIdle
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Profile returns the last fetched profile, if any fetch has completed.
func (c *Controller) Profile() (models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile, c.loaded
}

// Manager hands out one controller per user so concurrent sync requests for
// the same user share a single polling loop.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Controller
	interval time.Duration
	timeout  time.Duration
}

func NewManager(interval, timeout time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Controller),
		interval: interval,
		timeout:  timeout,
	}
}

// Start begins (or restarts) reconciliation for a user.
func (m *Manager) Start(userID string, fetch FetchFunc) *Controller {
	m.mu.Lock()
	c, ok := m.sessions[userID]
	if !ok {
		c = NewController(fetch, m.interval, m.timeout)
		m.sessions[userID] = c
	}
	m.mu.Unlock()

	c.Start()
	return c
}

// Get returns the user's controller, or nil when no sync was started.
func (m *Manager) Get(userID string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}
