package integration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/distributed"
	"github.com/eng-cc/agent-world-sub009/simkernel/kernel"
	"github.com/eng-cc/agent-world-sub009/simkernel/persistence"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

// buildBlockFromKernel mirrors what internal/bridge.Instance.Snapshot does,
// at a scale small enough to assert every root by hand.
func buildBlockFromKernel(t *testing.T, k *kernel.World, cas *persistence.CAS, worldID string, height uint64, parentHash string) (distributed.WorldBlock, persistence.Manifest, []persistence.Segment, persistence.Snapshot) {
	t.Helper()
	aSeq, aEra, eSeq, eEra := k.Counters()
	snap := persistence.Build(k.Time(), k.State(), k.PendingActions(), len(k.Journal()), aSeq, aEra, eSeq, eEra)

	manifest, _, err := persistence.ChunkAndStore(cas, snap, 0)
	require.NoError(t, err)
	segments, err := persistence.SegmentJournal(cas, k.Journal(), 0)
	require.NoError(t, err)

	receipts := make([]distributed.Receipt, 0, len(k.Journal()))
	for _, ev := range k.Journal() {
		receipts = append(receipts, distributed.Receipt{EventID: ev.ID, Outcome: string(ev.Kind)})
	}

	block, err := distributed.BuildBlock(worldID, height, parentHash, manifest, segments, manifest.StateRoot, k.ActionLog(), k.Journal(), receipts, 1_700_000_000_000)
	require.NoError(t, err)
	return block, manifest, segments, snap
}

// A block built from a kernel's own state/journal validates cleanly against
// an empty (genesis) head, and replay through RestoreFrom is admissible
// (§4.5 8-step contract end to end).
func TestDistributedBlockValidatesAgainstGenesisHead(t *testing.T) {
	k := kernel.New()
	k.State().Locations["loc-a"] = world.NewLocation("loc-a", "Alpha", world.GeoPos{})
	ctx := context.Background()

	k.SubmitAction(registerAction(1, "agent-1", "loc-a"))
	_, ok := k.Step(ctx)
	require.True(t, ok)

	cas := persistence.NewCAS(4)
	block, manifest, segments, snap := buildBlockFromKernel(t, k, cas, "world-1", 1, "")

	replay := func(s persistence.Snapshot, journal []action.WorldEvent) error {
		replayed := kernel.New()
		replayed.RestoreFrom(s.State, journal, s.PendingActions, s.Time, s.NextActionSeq, s.ActionEra, s.NextEventSeq, s.EventEra)
		return nil
	}

	head := distributed.Head{WorldID: "world-1", Height: 0, StateRoot: "", BlockHash: ""}
	err := distributed.Validate(head, block, manifest, segments, cas, snap, k.ActionLog(), []distributed.Receipt{{EventID: k.Journal()[0].ID, Outcome: string(k.Journal()[0].Kind)}}, replay)
	require.NoError(t, err)
}

// Tampering with a block's action_root after the fact is caught by
// Validate — it recomputes every root rather than trusting the wire value.
func TestDistributedBlockRejectsTamperedRoot(t *testing.T) {
	k := kernel.New()
	k.State().Locations["loc-a"] = world.NewLocation("loc-a", "Alpha", world.GeoPos{})
	ctx := context.Background()

	k.SubmitAction(registerAction(1, "agent-1", "loc-a"))
	_, ok := k.Step(ctx)
	require.True(t, ok)

	cas := persistence.NewCAS(4)
	block, manifest, segments, snap := buildBlockFromKernel(t, k, cas, "world-1", 1, "")
	block.ActionRoot = "deadbeef"

	head := distributed.Head{WorldID: "world-1", Height: 0}
	err := distributed.Validate(head, block, manifest, segments, cas, snap, k.ActionLog(), []distributed.Receipt{{EventID: k.Journal()[0].ID, Outcome: string(k.Journal()[0].Kind)}}, nil)
	require.Error(t, err)
}

// The loopback transport tracks a monotonically advancing head per world,
// and Get/Put round-trip a blob by its own content hash.
func TestLoopbackTransportHeadAndBlob(t *testing.T) {
	ctx := context.Background()
	tr := distributed.NewLoopbackTransport()

	_, ok, err := tr.Head(ctx, "world-1")
	require.NoError(t, err)
	require.False(t, ok)

	block := distributed.WorldBlock{WorldID: "world-1", Height: 1, StateRoot: "root-1"}
	require.NoError(t, tr.Submit(ctx, block))

	head, ok, err := tr.Head(ctx, "world-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), head.Height)

	hash, err := tr.Put(ctx, []byte("hello world"))
	require.NoError(t, err)
	got, err := tr.Get(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}
