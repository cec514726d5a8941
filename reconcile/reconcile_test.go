package reconcile

import (
	"errors"
	"sync"
	"testing"
	"time"

	"expense-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend simulates the profile store: free/zero-quota until Upgrade.
type fakeBackend struct {
	mu      sync.Mutex
	fetches int
	user    models.User
	err     error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{user: models.User{ID: "u1", PlanID: models.PlanFree, MonthlyDocsLimit: 0}}
}

func (b *fakeBackend) fetch() (models.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if b.err != nil {
		return models.User{}, b.err
	}
	return b.user, nil
}

func (b *fakeBackend) upgrade() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.user.PlanID = models.PlanPro
	b.user.MonthlyDocsLimit = 100
}

func (b *fakeBackend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

func waitForState(t *testing.T, c *Controller, want State, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.State(), want)
}

func TestConvergedPredicate(t *testing.T) {
	assert.False(t, Converged(models.User{PlanID: models.PlanFree, MonthlyDocsLimit: 0}))
	assert.True(t, Converged(models.User{PlanID: models.PlanPro, MonthlyDocsLimit: 0}))
	assert.True(t, Converged(models.User{PlanID: models.PlanFree, MonthlyDocsLimit: 10}))
}

func TestConvergesAfterDelayedUpgrade(t *testing.T) {
	backend := newFakeBackend()
	c := NewController(backend.fetch, 10*time.Millisecond, time.Second)

	c.Start()
	assert.Equal(t, StateSyncing, c.State())

	time.AfterFunc(35*time.Millisecond, backend.upgrade)

	waitForState(t, c, StateConverged, 500*time.Millisecond)

	profile, ok := c.Profile()
	require.True(t, ok)
	assert.Equal(t, models.PlanPro, profile.PlanID)

	// Polling must stop once converged.
	count := backend.fetchCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, backend.fetchCount())
}

func TestTimesOutWhenBackendNeverUpdates(t *testing.T) {
	backend := newFakeBackend()
	c := NewController(backend.fetch, 10*time.Millisecond, 60*time.Millisecond)

	c.Start()
	waitForState(t, c, StateTimedOut, 500*time.Millisecond)

	// The last fetched value stays available as the fallback.
	profile, ok := c.Profile()
	require.True(t, ok)
	assert.Equal(t, models.PlanFree, profile.PlanID)

	// No further fetches after the ceiling.
	count := backend.fetchCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, backend.fetchCount())
}

func TestStartCancelsPreviousLoop(t *testing.T) {
	backend := newFakeBackend()
	c := NewController(backend.fetch, 10*time.Millisecond, time.Second)

	c.Start()
	c.Start()
	assert.Equal(t, StateSyncing, c.State())

	backend.upgrade()
	waitForState(t, c, StateConverged, 500*time.Millisecond)

	// Only the surviving loop may fetch afterwards; with the old loop
	// cancelled the count settles immediately.
	count := backend.fetchCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, backend.fetchCount())
}

func TestStopReleasesLoop(t *testing.T) {
	backend := newFakeBackend()
	c := NewController(backend.fetch, 10*time.Millisecond, time.Second)

	c.Start()
	time.Sleep(25 * time.Millisecond)
	c.Stop()

	assert.Equal(t, StateIdle, c.State())

	count := backend.fetchCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, backend.fetchCount())

	// Stop is safe to repeat.
	c.Stop()
}

func TestCheckNowOutsideInterval(t *testing.T) {
	backend := newFakeBackend()
	// Interval far beyond the test horizon: only the initial fetch and
	// explicit CheckNow calls can observe the backend.
	c := NewController(backend.fetch, time.Hour, time.Hour)

	c.Start()
	waitForFetches(t, backend, 1)

	backend.upgrade()

	profile, err := c.CheckNow()
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, profile.PlanID)
	assert.Equal(t, StateConverged, c.State())
}

func TestCheckNowRescuesTimedOutSession(t *testing.T) {
	backend := newFakeBackend()
	c := NewController(backend.fetch, 10*time.Millisecond, 60*time.Millisecond)

	c.Start()
	waitForState(t, c, StateTimedOut, 500*time.Millisecond)

	// The backend catches up after the poll budget is exhausted. A manual
	// check must still be able to move the session to converged.
	backend.upgrade()

	profile, err := c.CheckNow()
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, profile.PlanID)
	assert.Equal(t, StateConverged, c.State())

	got, ok := c.Profile()
	require.True(t, ok)
	assert.Equal(t, 100, got.MonthlyDocsLimit)
}

func TestCheckNowAfterTimeoutKeepsStateWhenStale(t *testing.T) {
	backend := newFakeBackend()
	c := NewController(backend.fetch, 10*time.Millisecond, 60*time.Millisecond)

	c.Start()
	waitForState(t, c, StateTimedOut, 500*time.Millisecond)

	// Backend still serves the stale profile: the session stays timed out.
	_, err := c.CheckNow()
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, c.State())
}

func TestCheckNowPropagatesFetchError(t *testing.T) {
	backend := newFakeBackend()
	c := NewController(backend.fetch, time.Hour, time.Hour)

	backend.mu.Lock()
	backend.err = errors.New("store unavailable")
	backend.mu.Unlock()

	_, err := c.CheckNow()
	assert.Error(t, err)
}

func TestTransientFetchErrorsAreAbsorbed(t *testing.T) {
	backend := newFakeBackend()
	backend.mu.Lock()
	backend.err = errors.New("store unavailable")
	backend.mu.Unlock()

	c := NewController(backend.fetch, 10*time.Millisecond, time.Second)
	c.Start()
	waitForFetches(t, backend, 2)

	// Still syncing: errors do not end the loop.
	assert.Equal(t, StateSyncing, c.State())

	backend.mu.Lock()
	backend.err = nil
	backend.mu.Unlock()
	backend.upgrade()

	waitForState(t, c, StateConverged, 500*time.Millisecond)
}

func TestManagerSharesOneControllerPerUser(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(10*time.Millisecond, time.Second)

	a := m.Start("u1", backend.fetch)
	b := m.Start("u1", backend.fetch)
	assert.Same(t, a, b)

	assert.Nil(t, m.Get("someone-else"))

	backend.upgrade()
	waitForState(t, a, StateConverged, 500*time.Millisecond)
}

func waitForFetches(t *testing.T, b *fakeBackend, n int) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if b.fetchCount() >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("fetch count = %d, want >= %d", b.fetchCount(), n)
}
