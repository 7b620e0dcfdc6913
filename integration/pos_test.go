package integration_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world-sub009/simkernel/pos"
)

func threeValidators() pos.ValidatorSet {
	return pos.ValidatorSet{Stakes: map[string]uint64{
		"validator-a": 10,
		"validator-b": 10,
		"validator-c": 10,
	}}
}

// ProposerForSlot is a pure function of (validator set, slot): calling it
// twice for the same slot always yields the same proposer.
func TestProposerForSlotIsDeterministic(t *testing.T) {
	set := threeValidators()
	p1, err := pos.ProposerForSlot(set, 42)
	require.NoError(t, err)
	p2, err := pos.ProposerForSlot(set, 42)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Contains(t, set.Stakes, p1)
}

// RequiredStake computes a generalized ceil(total*num/denom) threshold, not
// a hardcoded 2/3 majority.
func TestRequiredStakeFraction(t *testing.T) {
	require.Equal(t, uint64(20), pos.RequiredStake(30, 2, 3))
	require.Equal(t, uint64(15), pos.RequiredStake(30, 1, 2))
	require.Equal(t, uint64(30), pos.RequiredStake(30, 1, 0))
}

// A block reaches Committed only once approved stake crosses the required
// threshold, and Decide never mutates state when called repeatedly (P8).
func TestGateCommitsOnQuorum(t *testing.T) {
	set := threeValidators()
	gate := pos.NewGate(set, 2, 3)

	proposer, err := pos.ProposerForSlot(set, 1)
	require.NoError(t, err)
	require.NoError(t, gate.ProposeHead("world-1", 1, "hash-a", proposer, 1, 1000, 0, 0))
	require.Equal(t, pos.DecisionPending, gate.Decide("world-1", 1, "hash-a"))

	for id := range set.Stakes {
		if id == proposer {
			continue
		}
		require.NoError(t, gate.AttestHead("world-1", 1, "hash-a", id, true, 1000, 0, 0, ""))
	}
	require.Equal(t, pos.DecisionCommitted, gate.Decide("world-1", 1, "hash-a"))
	require.Equal(t, pos.DecisionCommitted, gate.Decide("world-1", 1, "hash-a"))
}

// A validator double-voting for the same target epoch with a different
// block hash is rejected without mutating the gate's tally (P9).
func TestGateRejectsDoubleVote(t *testing.T) {
	set := threeValidators()
	gate := pos.NewGate(set, 2, 3)

	require.NoError(t, gate.AttestHead("world-1", 1, "hash-a", "validator-a", true, 1000, 0, 5, ""))
	err := gate.AttestHead("world-1", 1, "hash-b", "validator-a", true, 1001, 0, 5, "")
	require.Error(t, err)

	require.Equal(t, pos.DecisionPending, gate.Decide("world-1", 1, "hash-b"))
}

// A validator's new vote whose [source,target) epoch interval strictly
// surrounds its own prior interval is rejected (P9 surround-vote ban).
func TestGateRejectsSurroundVote(t *testing.T) {
	set := threeValidators()
	gate := pos.NewGate(set, 2, 3)

	require.NoError(t, gate.AttestHead("world-1", 1, "hash-a", "validator-a", true, 1000, 2, 4, ""))
	err := gate.AttestHead("world-1", 2, "hash-b", "validator-a", true, 1001, 1, 5, "")
	require.Error(t, err)
}

// ProposeHead rejects a proposer that does not match the slot's deterministic
// expected proposer.
func TestProposeHeadRejectsWrongProposer(t *testing.T) {
	set := threeValidators()
	gate := pos.NewGate(set, 2, 3)
	expected, err := pos.ProposerForSlot(set, 7)
	require.NoError(t, err)

	wrong := "validator-a"
	for id := range set.Stakes {
		if id != expected {
			wrong = id
			break
		}
	}
	err = gate.ProposeHead("world-1", 1, "hash-a", wrong, 7, 1000, 0, 0)
	require.Error(t, err)
}
