package bridge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world-sub009/internal/bridge"
	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/pos"
	"github.com/eng-cc/agent-world-sub009/simkernel/runtime"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

func newTestInstance(t *testing.T) *bridge.Instance {
	t.Helper()
	cfg := bridge.Config{
		WorldID:          "world-test",
		StateDir:         t.TempDir(),
		SnapshotInterval: 1,
		MaxSnapshots:     5,
		ViewerListenAddr: ":0",
		EpochLengthSlots: 10,
		QuorumNum:        1,
		QuorumDenom:      1,
	}
	validators := pos.ValidatorSet{Stakes: map[string]uint64{"validator-1": 1}}
	inst, err := bridge.New(cfg, runtime.NullSandbox{}, validators)
	require.NoError(t, err)
	return inst
}

// A registered agent steps through the kernel and a subsequent Snapshot
// assembles, proposes, and (with a single validator at 1/1 quorum) commits a
// WorldBlock to the local head service — the baseline end-to-end path.
func TestInstanceStepAndSnapshotCommits(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()

	inst.Kernel.State().Locations["loc-a"] = world.NewLocation("loc-a", "Alpha", world.GeoPos{})
	inst.Kernel.SubmitAction(action.Action{
		ID:   inst.Kernel.NextActionID(),
		Kind: action.KindRegisterAgent,
		RegisterAgent: &action.RegisterAgentPayload{
			AgentID: "agent-1", LocationID: "loc-a",
		},
	})
	ev, ok := inst.Kernel.Step(ctx)
	require.True(t, ok)
	require.Equal(t, action.EventAgentRegistered, ev.Kind)

	block, err := inst.Snapshot(ctx, 1_700_000_000_000, "validator-1", 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.Height)

	head, ok, err := inst.Transport.Head(ctx, "world-test")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), head.Height)
}

// A single-writer lease for this world's scope is granted once and denied to
// a second holder while still active.
func TestInstanceAcquireWriterLease(t *testing.T) {
	inst := newTestInstance(t)

	_, err := inst.AcquireWriterLease("writer-a", 1000, 100)
	require.NoError(t, err)

	_, err = inst.AcquireWriterLease("writer-b", 1050, 100)
	require.Error(t, err)
}
