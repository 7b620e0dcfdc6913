package persistence

import (
	"os"
	"path/filepath"

	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

const (
	modulesSubdir   = "modules"
	moduleRegistry  = "module_registry.json"
	registryVersion = 1
)

// ModuleRegistryEntry is one artifact's entry in the version-tagged registry
// file (§4.4).
type ModuleRegistryEntry struct {
	Hash    world.ArtifactHash `json:"hash"`
	OwnerID world.AgentID      `json:"owner_id"`
}

// ModuleRegistryFile is the on-disk registry, version-tagged so future
// layout changes can be detected on load.
type ModuleRegistryFile struct {
	Version int                   `json:"version"`
	Entries []ModuleRegistryEntry `json:"entries"`
}

// ModuleStore manages `modules/<hash>.wasm` blobs plus the registry file,
// using the same CAS single-writer-per-hash discipline: writes are staged to
// a temp file and atomically renamed into place.
type ModuleStore struct {
	Root string
}

// NewModuleStore binds the store to root (the directory layout's top level).
func NewModuleStore(root string) *ModuleStore {
	return &ModuleStore{Root: root}
}

// Put writes bytes to modules/<hash>.wasm via a temp-file + atomic rename,
// verifying BLAKE3(bytes) == hash first.
func (m *ModuleStore) Put(hash world.ArtifactHash, bytes []byte) error {
	if !codec.VerifyHash(bytes, string(hash)) {
		return errs.Newf(errs.CodeArtifactHashMismatch, "bytes do not hash to %q", hash)
	}
	dir := filepath.Join(m.Root, modulesSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.CodeIO, "mkdir modules", err)
	}
	final := filepath.Join(dir, string(hash)+".wasm")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, bytes, 0o644); err != nil {
		return errs.Wrap(errs.CodeIO, "write module artifact temp file", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return errs.Wrap(errs.CodeIO, "rename module artifact into place", err)
	}
	return nil
}

// Get reads modules/<hash>.wasm, failing with CodeModuleStoreMismatch if the
// stored bytes no longer hash to hash (tamper detection, §4.4).
func (m *ModuleStore) Get(hash world.ArtifactHash) ([]byte, error) {
	path := filepath.Join(m.Root, modulesSubdir, string(hash)+".wasm")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.CodeIO, "read module artifact", err)
	}
	if !codec.VerifyHash(b, string(hash)) {
		return nil, errs.Newf(errs.CodeModuleStoreMismatch, "module artifact %q failed hash verification on load", hash)
	}
	return b, nil
}

// SaveRegistry writes the version-tagged registry file.
func (m *ModuleStore) SaveRegistry(entries []ModuleRegistryEntry) error {
	return writeJSON(filepath.Join(m.Root, moduleRegistry), ModuleRegistryFile{Version: registryVersion, Entries: entries})
}

// LoadRegistry reads the registry file, rejecting a future/unknown version.
func (m *ModuleStore) LoadRegistry() ([]ModuleRegistryEntry, error) {
	var f ModuleRegistryFile
	if err := readJSON(filepath.Join(m.Root, moduleRegistry), &f); err != nil {
		return nil, err
	}
	if f.Version > registryVersion {
		return nil, errs.Newf(errs.CodeModuleStoreMismatch, "module registry version %d is newer than supported %d", f.Version, registryVersion)
	}
	return f.Entries, nil
}
