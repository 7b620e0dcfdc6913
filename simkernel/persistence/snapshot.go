// Package persistence implements snapshot/journal encoding, content-addressed
// chunk storage, and directory save/load with legacy JSON fallback (§4.4).
package persistence

import (
	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

const snapshotVersion = 1
const chunkGenSchemaVersion = 1

// Snapshot is the versioned struct persisted to capture full world state
// (§4.4). Missing *_era fields on load default to 0 for backward
// compatibility with pre-era snapshots.
type Snapshot struct {
	Version               int              `cbor:"version"`
	ChunkGenSchemaVersion int              `cbor:"chunk_gen_schema_version"`
	Time                  action.WorldTime `cbor:"time"`

	State *world.State `cbor:"state"`

	PendingActions []action.Action `cbor:"pending_actions"`
	JournalLen     int             `cbor:"journal_len"`

	NextActionSeq uint64 `cbor:"next_action_id"`
	NextEventSeq  uint64 `cbor:"next_event_id"`
	ActionEra     uint64 `cbor:"action_era,omitempty"`
	EventEra      uint64 `cbor:"event_era,omitempty"`
}

// Build constructs a Snapshot from a kernel's exposed state. Callers pass in
// whatever the kernel.World already exposes rather than persistence
// importing kernel, keeping the dependency direction state -> persistence.
func Build(t action.WorldTime, state *world.State, pending []action.Action, journalLen int, actionSeq, actionEra, eventSeq, eventEra uint64) Snapshot {
	return Snapshot{
		Version:               snapshotVersion,
		ChunkGenSchemaVersion: chunkGenSchemaVersion,
		Time:                  t,
		State:                 state,
		PendingActions:        pending,
		JournalLen:            journalLen,
		NextActionSeq:         actionSeq,
		NextEventSeq:          eventSeq,
		ActionEra:             actionEra,
		EventEra:              eventEra,
	}
}
