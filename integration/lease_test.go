package integration_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world-sub009/simkernel/lease"
)

// At most one holder can have an active lease for a scope at a time (P6):
// a second TryAcquire while the first is still active is rejected, but
// succeeds again once the first has expired.
func TestLeaseAtMostOneActiveHolder(t *testing.T) {
	m := lease.NewManager()

	l1, err := m.TryAcquire("writer-a", 1000, 100)
	require.NoError(t, err)
	require.True(t, l1.Active(1050))

	_, err = m.TryAcquire("writer-b", 1050, 100)
	require.Error(t, err)

	_, err = m.TryAcquire("writer-b", 1101, 100)
	require.NoError(t, err)
}

// Renew only succeeds against the currently active lease's own id.
func TestLeaseRenewRejectsStaleID(t *testing.T) {
	m := lease.NewManager()
	l1, err := m.TryAcquire("writer-a", 1000, 100)
	require.NoError(t, err)

	_, err = m.Renew("not-the-lease-id", 1050, 100)
	require.Error(t, err)

	renewed, err := m.Renew(l1.ID, 1050, 100)
	require.NoError(t, err)
	require.Equal(t, int64(1150), renewed.ExpiresAt)
}

// A non-positive ttl is rejected without granting or mutating anything.
func TestLeaseRejectsNonPositiveTTL(t *testing.T) {
	m := lease.NewManager()
	_, err := m.TryAcquire("writer-a", 1000, 0)
	require.Error(t, err)
	require.Equal(t, lease.Lease{}, m.Current())
}

// Release only clears the lease when the id matches; a stale release is a
// no-op that leaves the real holder's lease untouched.
func TestLeaseReleaseRequiresMatchingID(t *testing.T) {
	m := lease.NewManager()
	l1, err := m.TryAcquire("writer-a", 1000, 100)
	require.NoError(t, err)

	require.Error(t, m.Release("wrong-id"))
	require.True(t, m.Current().Active(1001))

	require.NoError(t, m.Release(l1.ID))
	require.False(t, m.Current().Active(1001))
}

// Scopes are fully independent: acquiring in one scope never blocks another.
func TestScopedManagerIsolatesScopes(t *testing.T) {
	sm := lease.NewScopedManager()
	_, err := sm.TryAcquire("zone-a", "writer-a", 1000, 100)
	require.NoError(t, err)

	_, err = sm.TryAcquire("zone-b", "writer-b", 1000, 100)
	require.NoError(t, err)

	_, err = sm.TryAcquire("zone-a", "writer-c", 1050, 100)
	require.Error(t, err)
}
