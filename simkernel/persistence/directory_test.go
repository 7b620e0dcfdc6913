package persistence_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/persistence"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

func sampleSnapshot() persistence.Snapshot {
	s := world.New()
	s.Agents["agent-1"] = world.NewAgent("agent-1", "loc-a", world.GeoPos{})
	return persistence.Build(action.WorldTime(3), s, nil, 1, 2, 0, 1, 0)
}

func sampleJournal() []action.WorldEvent {
	return []action.WorldEvent{
		{ID: world.EventID{Seq: 1}, Kind: action.EventAgentRegistered, AgentRegistered: &action.AgentRegisteredPayload{AgentID: "agent-1", LocationID: "loc-a"}},
	}
}

// Save followed by Load through the distfs sidecar path reconstructs the same
// snapshot and journal that were written.
func TestDirectorySaveLoadRoundTrip(t *testing.T) {
	dir := persistence.NewDirectory(t.TempDir())
	cas := persistence.NewCAS(1024)
	snap := sampleSnapshot()
	journal := sampleJournal()

	require.NoError(t, dir.Save(cas, snap, journal, 1_000))

	loadedSnap, loadedJournal, err := dir.Load(cas, 2_000)
	require.NoError(t, err)
	require.Equal(t, snap.Time, loadedSnap.Time)
	require.Equal(t, snap.JournalLen, loadedSnap.JournalLen)
	require.Contains(t, loadedSnap.State.Agents, world.AgentID("agent-1"))
	require.Equal(t, journal, loadedJournal)
}

// Prune keeps only the MaxSnapshots most recent catalog entries and removes
// the rest from disk.
func TestPruneRemovesOldestBeyondRetention(t *testing.T) {
	root := t.TempDir()
	var catalog []persistence.CatalogEntry
	for i, name := range []string{"a", "b", "c"} {
		dir := root + "/" + name
		require.NoError(t, os.MkdirAll(dir, 0o755))
		catalog = append(catalog, persistence.CatalogEntry{Path: dir, CreatedAt: int64(i)})
	}

	kept, err := persistence.Prune(persistence.RetentionPolicy{MaxSnapshots: 1}, catalog)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	require.Equal(t, root+"/c", kept[0].Path)
}
