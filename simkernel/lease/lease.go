// Package lease implements single-writer coordination: a time-bounded
// exclusive right to act as a writer within a scope (§4.7, P6).
package lease

import (
	"sync"

	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
)

// State is the lifecycle of one lease: Available -> Held(ttl) -> Expired | Released.
type State string

const (
	StateAvailable State = "available"
	StateHeld      State = "held"
	StateExpired   State = "expired"
	StateReleased  State = "released"
)

// Lease is the current grant for a scope, or the zero value if none has ever
// been granted.
type Lease struct {
	ID        string `cbor:"id"`
	Holder    string `cbor:"holder"`
	Term      uint64 `cbor:"term"`
	ExpiresAt int64  `cbor:"expires_at"`
	State     State  `cbor:"state"`
}

// Active reports whether l is currently held and unexpired as of now.
func (l Lease) Active(now int64) bool {
	return l.State == StateHeld && l.ExpiresAt > now
}

// Manager guards a single scope's writer lease. All mutating methods are
// mutex-serialized and reject-without-mutating on any precondition failure
// (§4.7).
type Manager struct {
	mu      sync.Mutex
	current Lease
}

// NewManager returns a manager with no active lease.
func NewManager() *Manager {
	return &Manager{}
}

// TryAcquire grants a new lease to holder if no lease is currently active, or
// the active one has expired. Rejects without mutating state on ttl <= 0, a
// term that would overflow, or an expiry (now+ttl) that would overflow.
func (m *Manager) TryAcquire(holder string, now, ttl int64) (Lease, error) {
	if ttl <= 0 {
		return Lease{}, errs.New(errs.CodeInvalidAmount, "lease ttl must be positive")
	}
	expiresAt, ok := addOverflowSafe(now, ttl)
	if !ok {
		return Lease{}, errs.New(errs.CodeInvalidAmount, "lease expiry would overflow")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Active(now) {
		return Lease{}, errs.Newf(errs.CodeInvalidState, "scope already held by %q until %d", m.current.Holder, m.current.ExpiresAt)
	}

	nextTerm := m.current.Term + 1
	if nextTerm < m.current.Term {
		return Lease{}, errs.New(errs.CodeInvalidAmount, "lease term would overflow")
	}

	granted := Lease{
		ID:        leaseID(holder, now, int64(nextTerm)),
		Holder:    holder,
		Term:      nextTerm,
		ExpiresAt: expiresAt,
		State:     StateHeld,
	}
	m.current = granted
	return granted, nil
}

// Renew extends the active lease if leaseID matches the current lease and it
// is unexpired. Rejects on mismatch, expiry, ttl <= 0, or overflow, without
// mutating state.
func (m *Manager) Renew(id string, now, ttl int64) (Lease, error) {
	if ttl <= 0 {
		return Lease{}, errs.New(errs.CodeInvalidAmount, "lease ttl must be positive")
	}
	expiresAt, ok := addOverflowSafe(now, ttl)
	if !ok {
		return Lease{}, errs.New(errs.CodeInvalidAmount, "lease expiry would overflow")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID != id || !m.current.Active(now) {
		return Lease{}, errs.New(errs.CodeInvalidState, "lease id does not match the active lease, or it has expired")
	}
	m.current.ExpiresAt = expiresAt
	return m.current, nil
}

// Release clears the lease iff id matches the current one. A mismatch is a
// no-op error; it never clears another holder's lease.
func (m *Manager) Release(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.ID != id {
		return errs.New(errs.CodeInvalidState, "lease id does not match the active lease")
	}
	m.current.State = StateReleased
	return nil
}

// ExpireIfNeeded clears the lease if it is past expiry as of now, returning
// the prior state for the caller's bookkeeping.
func (m *Manager) ExpireIfNeeded(now int64) Lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	prior := m.current
	if m.current.State == StateHeld && m.current.ExpiresAt <= now {
		m.current.State = StateExpired
	}
	return prior
}

// Current returns a copy of the tracked lease without mutating it.
func (m *Manager) Current() Lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func leaseID(holder string, now, ttl int64) string {
	return codec.MustHashCanonical(struct {
		Holder string `cbor:"holder"`
		Now    int64  `cbor:"now"`
		Term   int64  `cbor:"term"`
	}{holder, now, ttl})
}

func addOverflowSafe(a, b int64) (int64, bool) {
	sum := a + b
	if b > 0 && sum < a {
		return 0, false
	}
	if b < 0 && sum > a {
		return 0, false
	}
	return sum, true
}

// ScopedManager partitions independent Managers by an arbitrary scope key
// (e.g. "zone-a", "zone-b"), so acquisition in one scope never blocks
// another.
type ScopedManager struct {
	mu     sync.Mutex
	scopes map[string]*Manager
}

// NewScopedManager returns an empty scoped lease manager.
func NewScopedManager() *ScopedManager {
	return &ScopedManager{scopes: map[string]*Manager{}}
}

func (s *ScopedManager) managerFor(scope string) *Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.scopes[scope]
	if !ok {
		m = NewManager()
		s.scopes[scope] = m
	}
	return m
}

// TryAcquire grants holder the lease for scope, independent of any other scope.
func (s *ScopedManager) TryAcquire(scope, holder string, now, ttl int64) (Lease, error) {
	return s.managerFor(scope).TryAcquire(holder, now, ttl)
}

// Renew extends the lease for scope.
func (s *ScopedManager) Renew(scope, id string, now, ttl int64) (Lease, error) {
	return s.managerFor(scope).Renew(id, now, ttl)
}

// Release clears the lease for scope.
func (s *ScopedManager) Release(scope, id string) error {
	return s.managerFor(scope).Release(id)
}

// ExpireIfNeeded expires scope's lease if due, returning its prior state.
func (s *ScopedManager) ExpireIfNeeded(scope string, now int64) Lease {
	return s.managerFor(scope).ExpireIfNeeded(now)
}

// Current returns scope's tracked lease.
func (s *ScopedManager) Current(scope string) Lease {
	return s.managerFor(scope).Current()
}
