package world

import (
	"sort"
	"strconv"
)

// State is the full invariant-bearing world state (§3.2). Containers are
// plain maps; the reducer always iterates them in sorted-by-id order so
// output is deterministic regardless of map iteration order (§4.1 tie-break).
type State struct {
	Agents     map[AgentID]*Agent        `cbor:"agents"`
	Locations  map[LocationID]*Location  `cbor:"locations"`
	Chunks     map[ChunkCoord]*Chunk     `cbor:"chunks"`
	Facilities map[FacilityID]*Facility  `cbor:"facilities"`

	Contracts   map[string]*EconomicContract   `cbor:"contracts"`
	Alliances   map[string]*Alliance           `cbor:"alliances"`
	Wars        map[string]*War                `cbor:"wars"`
	Proposals   map[string]*GovernanceProposal `cbor:"proposals"`
	Crises      map[string]*Crisis             `cbor:"crises"`

	Artifacts map[ArtifactHash]*ModuleArtifact  `cbor:"artifacts"`
	Modules   map[string]*InstalledModule       `cbor:"modules"` // key: moduleID+"@"+version

	PendingFactoryBuilds []PendingFactoryBuild `cbor:"pending_factory_builds"`
	PendingRecipes       []PendingRecipe       `cbor:"pending_recipes"`
}

// PendingFactoryBuild tracks an in-progress BuildFactory completion.
type PendingFactoryBuild struct {
	FacilityID  FacilityID `cbor:"facility_id"`
	CompleteAt  int64      `cbor:"complete_at"`
	Spec        FactorySpec `cbor:"spec"`
}

// PendingRecipe tracks an in-progress ScheduleRecipe completion.
type PendingRecipe struct {
	RecipeID   string     `cbor:"recipe_id"`
	FacilityID FacilityID `cbor:"facility_id"`
	CompleteAt int64      `cbor:"complete_at"`
}

// New returns an empty world state.
func New() *State {
	return &State{
		Agents:     map[AgentID]*Agent{},
		Locations:  map[LocationID]*Location{},
		Chunks:     map[ChunkCoord]*Chunk{},
		Facilities: map[FacilityID]*Facility{},
		Contracts:  map[string]*EconomicContract{},
		Alliances:  map[string]*Alliance{},
		Wars:       map[string]*War{},
		Proposals:  map[string]*GovernanceProposal{},
		Crises:     map[string]*Crisis{},
		Artifacts:  map[ArtifactHash]*ModuleArtifact{},
		Modules:    map[string]*InstalledModule{},
	}
}

// Clone deep-copies the world state for snapshotting / rollback.
func (s *State) Clone() *State {
	out := New()
	for k, v := range s.Agents {
		out.Agents[k] = v.Clone()
	}
	for k, v := range s.Locations {
		out.Locations[k] = v.Clone()
	}
	for k, v := range s.Chunks {
		out.Chunks[k] = v.Clone()
	}
	for k, v := range s.Facilities {
		out.Facilities[k] = v.Clone()
	}
	for k, v := range s.Contracts {
		out.Contracts[k] = v.Clone()
	}
	for k, v := range s.Alliances {
		out.Alliances[k] = v.Clone()
	}
	for k, v := range s.Wars {
		out.Wars[k] = v.Clone()
	}
	for k, v := range s.Proposals {
		out.Proposals[k] = v.Clone()
	}
	for k, v := range s.Crises {
		out.Crises[k] = v.Clone()
	}
	for k, v := range s.Artifacts {
		out.Artifacts[k] = v.Clone()
	}
	for k, v := range s.Modules {
		out.Modules[k] = v.Clone()
	}
	out.PendingFactoryBuilds = append([]PendingFactoryBuild(nil), s.PendingFactoryBuilds...)
	out.PendingRecipes = append([]PendingRecipe(nil), s.PendingRecipes...)
	return out
}

// SortedAgentIDs returns agent ids in ascending lexical order.
func (s *State) SortedAgentIDs() []AgentID {
	ids := make([]AgentID, 0, len(s.Agents))
	for id := range s.Agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SortedLocationIDs returns location ids in ascending lexical order.
func (s *State) SortedLocationIDs() []LocationID {
	ids := make([]LocationID, 0, len(s.Locations))
	for id := range s.Locations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ModuleKey builds the map key for an (id, version) installed module pair.
func ModuleKey(id ModuleID, version uint64) string {
	return string(id) + "@" + strconv.FormatUint(version, 10)
}
