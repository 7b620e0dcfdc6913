package world

// ModuleArtifact is content-addressed module bytecode, owned by an agent and
// tradeable on the artifact market (§3.2).
type ModuleArtifact struct {
	Hash      ArtifactHash     `cbor:"hash"`
	Bytes     []byte           `cbor:"bytes"`
	OwnerID   AgentID          `cbor:"owner_id"`
	Listed    bool             `cbor:"listed"`
	Destroyed bool             `cbor:"destroyed"`
	Bids      map[AgentID]int64 `cbor:"bids,omitempty"`
}

func (a *ModuleArtifact) Clone() *ModuleArtifact {
	cp := *a
	cp.Bytes = append([]byte(nil), a.Bytes...)
	if a.Bids != nil {
		cp.Bids = make(map[AgentID]int64, len(a.Bids))
		for k, v := range a.Bids {
			cp.Bids[k] = v
		}
	}
	return &cp
}

// ManifestSubscription declares which rule/event stage and kinds a module
// wants to observe (§4.2).
type ManifestSubscription struct {
	Stage      string   `cbor:"stage"`
	EventKinds []string `cbor:"event_kinds"`
}

// ModuleLimits bounds a module call's resource consumption (§5, §6.6).
type ModuleLimits struct {
	MaxMemBytes   uint64  `cbor:"max_mem_bytes"`
	MaxGas        uint64  `cbor:"max_gas"`
	MaxCallRate   float64 `cbor:"max_call_rate"` // calls per second
	MaxOutputBytes uint64 `cbor:"max_output_bytes"`
	MaxEffects    uint32  `cbor:"max_effects"`
	MaxEmits      uint32  `cbor:"max_emits"`
}

// DefaultModuleLimits returns conservative defaults.
func DefaultModuleLimits() ModuleLimits {
	return ModuleLimits{
		MaxMemBytes:    16 << 20,
		MaxGas:         10_000_000,
		MaxCallRate:    10,
		MaxOutputBytes: 1 << 20,
		MaxEffects:     64,
		MaxEmits:       64,
	}
}

// Manifest describes a module's identity, subscriptions, and limits.
type Manifest struct {
	ModuleID      ModuleID               `cbor:"module_id"`
	Version       uint64                 `cbor:"version"`
	ArtifactHash  ArtifactHash           `cbor:"artifact_hash"`
	Entrypoint    string                 `cbor:"entrypoint"`
	Subscriptions []ManifestSubscription `cbor:"subscriptions"`
	Limits        ModuleLimits           `cbor:"limits"`
}

func (m *Manifest) Clone() *Manifest {
	cp := *m
	cp.Subscriptions = append([]ManifestSubscription(nil), m.Subscriptions...)
	return &cp
}

// InstalledModuleState is the module lifecycle (§3.4).
type InstalledModuleState string

const (
	ModuleRegistered  InstalledModuleState = "registered"
	ModuleActivated   InstalledModuleState = "activated"
	ModuleDeactivated InstalledModuleState = "deactivated"
	ModuleDestroyed   InstalledModuleState = "destroyed"
)

// InstalledModule is an installed (module_id, version) pair with private
// state bytes, owned by an agent (§3.2).
type InstalledModule struct {
	ModuleID     ModuleID              `cbor:"module_id"`
	Version      uint64                `cbor:"version"`
	OwnerID      AgentID               `cbor:"owner_id"`
	ArtifactHash ArtifactHash          `cbor:"artifact_hash"`
	StateBytes   []byte                `cbor:"state_bytes"`
	Active       bool                  `cbor:"active"`
	Lifecycle    InstalledModuleState  `cbor:"lifecycle"`
	Manifest     Manifest              `cbor:"manifest"`
}

func (m *InstalledModule) Clone() *InstalledModule {
	cp := *m
	cp.StateBytes = append([]byte(nil), m.StateBytes...)
	mf := m.Manifest.Clone()
	cp.Manifest = *mf
	return &cp
}
