package persistence_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
	"github.com/eng-cc/agent-world-sub009/simkernel/persistence"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

func tamperModuleFile(t *testing.T, root string, hash world.ArtifactHash) {
	t.Helper()
	path := filepath.Join(root, "modules", string(hash)+".wasm")
	require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o644))
}

// A module artifact written through Put round-trips byte-for-byte through Get.
func TestModuleStorePutGetRoundTrip(t *testing.T) {
	store := persistence.NewModuleStore(t.TempDir())
	bytes := []byte("wasm bytecode goes here")
	hash := world.ArtifactHash(codec.Hash(bytes))

	require.NoError(t, store.Put(hash, bytes))

	got, err := store.Get(hash)
	require.NoError(t, err)
	require.Equal(t, bytes, got)
}

// Tampering with the stored blob after Put surfaces as a
// CodeModuleStoreMismatch on the next Get, never a silently wrong load.
func TestModuleStoreGetDetectsTamper(t *testing.T) {
	root := t.TempDir()
	store := persistence.NewModuleStore(root)
	bytes := []byte("wasm bytecode goes here")
	hash := world.ArtifactHash(codec.Hash(bytes))
	require.NoError(t, store.Put(hash, bytes))

	tamperModuleFile(t, root, hash)

	_, err := store.Get(hash)
	require.Error(t, err)
	e, ok := err.(*errs.Error)
	require.True(t, ok)
	require.Equal(t, errs.CodeModuleStoreMismatch, e.Code())
}

// The version-tagged registry file round-trips its entries, and rejects
// loading a registry written by a newer, unknown version.
func TestModuleStoreRegistryRoundTripAndVersionGate(t *testing.T) {
	store := persistence.NewModuleStore(t.TempDir())
	entries := []persistence.ModuleRegistryEntry{
		{Hash: "hash-a", OwnerID: "agent-1"},
		{Hash: "hash-b", OwnerID: "agent-2"},
	}
	require.NoError(t, store.SaveRegistry(entries))

	got, err := store.LoadRegistry()
	require.NoError(t, err)
	require.Equal(t, entries, got)

	newer := []byte(`{"version":2,"entries":[]}`)
	require.NoError(t, os.WriteFile(filepath.Join(store.Root, "module_registry.json"), newer, 0o644))
	_, err = store.LoadRegistry()
	require.Error(t, err)
}
