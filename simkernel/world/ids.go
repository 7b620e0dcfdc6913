// Package world holds the invariant-bearing world state: identifiers, agents,
// locations, chunks, facilities, and the longer-lived economic/governance
// lifecycle objects (§3.2, §3.5).
package world

import "fmt"

// AgentID, LocationID and similar string identifiers are caller-assigned
// (e.g. "agent-1"), unlike the monotonic kernel-assigned ActionID/EventID.
type AgentID string
type LocationID string
type FacilityID string
type ModuleID string
type ArtifactHash string

// ActionID, EventID, IntentID and ProposalID are monotonic 64-bit counters
// paired with an Era, so that ids remain unique across a rollback-to-snapshot
// recovery (§3.1).
type ActionID struct {
	Seq uint64
	Era uint64
}

type EventID struct {
	Seq uint64
	Era uint64
}

type IntentID struct {
	Seq uint64
	Era uint64
}

type ProposalID struct {
	Seq uint64
	Era uint64
}

func (id ActionID) String() string   { return fmt.Sprintf("%d.%d", id.Era, id.Seq) }
func (id EventID) String() string    { return fmt.Sprintf("%d.%d", id.Era, id.Seq) }
func (id IntentID) String() string   { return fmt.Sprintf("%d.%d", id.Era, id.Seq) }
func (id ProposalID) String() string { return fmt.Sprintf("%d.%d", id.Era, id.Seq) }

// Less orders ids first by Era then by Seq, giving a total order that
// survives era bumps across recovery.
func (id ActionID) Less(other ActionID) bool {
	if id.Era != other.Era {
		return id.Era < other.Era
	}
	return id.Seq < other.Seq
}

func (id EventID) Less(other EventID) bool {
	if id.Era != other.Era {
		return id.Era < other.Era
	}
	return id.Seq < other.Seq
}

// Counter is a monotonic per-world id generator that bumps Era on recovery
// so every later id orders (by Less) above any prior id, per §9's "global mutable counters"
// re-architecture note: confined to the world object, no package globals.
type Counter struct {
	era uint64
	seq uint64
}

// NewCounter creates a counter starting at era 0, seq 0.
func NewCounter() *Counter { return &Counter{} }

// Next returns the next (seq, era) pair and advances the counter.
func (c *Counter) Next() (seq uint64, era uint64) {
	c.seq++
	return c.seq, c.era
}

// Peek returns the id that Next would return, without advancing.
func (c *Counter) Peek() (seq uint64, era uint64) {
	return c.seq + 1, c.era
}

// Len returns how many ids have been issued in the current era.
func (c *Counter) Len() uint64 { return c.seq }

// Restore sets the counter's (seq, era) directly — used when loading a
// snapshot's next_*_id / *_era fields.
func (c *Counter) Restore(seq, era uint64) {
	c.seq = seq
	c.era = era
}

// BumpEra increments the era and resets seq to 0, guaranteeing that any id
// minted after recovery cannot collide with a pre-recovery id even if the
// journal was truncated (§3.1, §9 "Global mutable counters").
func (c *Counter) BumpEra() {
	c.era++
	c.seq = 0
}

// State returns the counter's current (seq, era) for persistence.
func (c *Counter) State() (seq, era uint64) { return c.seq, c.era }
