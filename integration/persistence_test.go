package integration_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
	"github.com/eng-cc/agent-world-sub009/simkernel/kernel"
	"github.com/eng-cc/agent-world-sub009/simkernel/persistence"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

// A kernel's state survives a full Save -> Load -> RestoreFrom round trip:
// the restored world resumes ticking right where the original left off.
func TestPersistenceSnapshotRestoreRoundTrip(t *testing.T) {
	k := newLocatedWorld(t)
	ctx := context.Background()

	k.SubmitAction(registerAction(1, "agent-1", "loc-a"))
	_, ok := k.Step(ctx)
	require.True(t, ok)
	k.State().Agents["agent-1"].Resources.Credit(world.ResourceElectricity, 10_000)

	k.SubmitAction(action.Action{
		ID:   world.ActionID{Seq: 2},
		Kind: action.KindMoveAgent,
		MoveAgent: &action.MoveAgentPayload{
			AgentID: "agent-1", TargetLocation: "loc-b", PerKmRate: 1,
		},
	})
	_, ok = k.Step(ctx)
	require.True(t, ok)

	cas := persistence.NewCAS(1024)
	dir := persistence.NewDirectory(t.TempDir())

	aSeq, aEra, eSeq, eEra := k.Counters()
	snap := persistence.Build(k.Time(), k.State(), k.PendingActions(), len(k.Journal()), aSeq, aEra, eSeq, eEra)
	require.NoError(t, dir.Save(cas, snap, k.Journal(), 1_700_000_000_000))

	loadedSnap, loadedJournal, err := dir.Load(cas, 1_700_000_001_000)
	require.NoError(t, err)

	restored := kernel.New()
	restored.RestoreFrom(loadedSnap.State, loadedJournal, loadedSnap.PendingActions, loadedSnap.Time, loadedSnap.NextActionSeq, loadedSnap.ActionEra, loadedSnap.NextEventSeq, loadedSnap.EventEra)

	require.Equal(t, world.LocationID("loc-b"), restored.State().Agents["agent-1"].LocationID)
	require.Equal(t, k.State().Agents["agent-1"].Resources.Get(world.ResourceElectricity), restored.State().Agents["agent-1"].Resources.Get(world.ResourceElectricity))
	require.Equal(t, k.Journal(), restored.Journal())

	restored.SubmitAction(registerAction(3, "agent-2", "loc-b"))
	ev, ok := restored.Step(ctx)
	require.True(t, ok)
	require.Equal(t, action.EventAgentRegistered, ev.Kind)
}

// A chunked snapshot manifest whose state_root no longer matches its chunks
// (the on-disk equivalent of a tampered module store entry) is rejected by
// Assemble rather than silently returning the wrong bytes.
func TestPersistenceSnapshotManifestTamperDetected(t *testing.T) {
	k := newLocatedWorld(t)
	ctx := context.Background()
	k.SubmitAction(registerAction(1, "agent-1", "loc-a"))
	_, ok := k.Step(ctx)
	require.True(t, ok)

	cas := persistence.NewCAS(1024)
	aSeq, aEra, eSeq, eEra := k.Counters()
	snap := persistence.Build(k.Time(), k.State(), k.PendingActions(), len(k.Journal()), aSeq, aEra, eSeq, eEra)

	manifest, _, err := persistence.ChunkAndStore(cas, snap, 0)
	require.NoError(t, err)

	manifest.StateRoot = "deadbeef"
	_, err = persistence.Assemble(cas, manifest)
	require.Error(t, err)
}

// A module artifact tampered with on disk after Put surfaces as
// CodeModuleStoreMismatch on Get, the store-level analogue of the
// manifest/state_root mismatch above.
func TestPersistenceModuleStoreTamperDetected(t *testing.T) {
	root := t.TempDir()
	store := persistence.NewModuleStore(root)
	bytes := []byte("wasm bytecode for the marketplace scenario")
	hash := world.ArtifactHash(codec.Hash(bytes))
	require.NoError(t, store.Put(hash, bytes))

	path := filepath.Join(root, "modules", string(hash)+".wasm")
	require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o644))

	_, err := store.Get(hash)
	require.Error(t, err)
	e, ok := err.(*errs.Error)
	require.True(t, ok)
	require.Equal(t, errs.CodeModuleStoreMismatch, e.Code())
}
