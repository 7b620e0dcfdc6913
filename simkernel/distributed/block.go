// Package distributed implements WorldBlock assembly and the 8-step head
// validation contract (§4.5), plus the transport-boundary interfaces kept
// deliberately thin since the physical network transport is out of scope.
package distributed

import (
	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
	"github.com/eng-cc/agent-world-sub009/simkernel/persistence"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

// WorldBlock anchors one committed world height with Merkle-style roots over
// its actions, events, and receipts (§4.5).
type WorldBlock struct {
	WorldID       string        `cbor:"world_id"`
	Height        uint64        `cbor:"height"`
	ParentHash    string        `cbor:"parent_hash"`
	StateRoot     string        `cbor:"state_root"`
	ActionRoot    string        `cbor:"action_root"`
	EventRoot     string        `cbor:"event_root"`
	ReceiptsRoot  string        `cbor:"receipts_root"`
	SnapshotRef   string        `cbor:"snapshot_ref"`
	JournalRef    string        `cbor:"journal_ref"`
	TimestampMs   int64         `cbor:"timestamp_ms"`
}

// BlockHash computes BLAKE3(canonical_cbor(block)) (§4.5 step 7).
func BlockHash(b WorldBlock) (string, error) {
	return codec.HashCanonical(b)
}

// Head is the locally tracked chain head a new block is validated against.
type Head struct {
	WorldID   string
	Height    uint64
	StateRoot string
	BlockHash string
}

// Receipt is the minimal per-event execution receipt the receipts_root
// commits to — module/rule outcomes that accompanied an event, keyed by the
// event's id so replay can cross-check them deterministically.
type Receipt struct {
	EventID world.EventID `cbor:"event_id"`
	Outcome string        `cbor:"outcome"`
}

// ReplayFunc re-derives world state from (snapshot, journal), mirroring
// kernel.World.RestoreFrom's admissibility check (§4.5 step 8) without
// distributed importing kernel directly (kept as an injected function to
// avoid a persistence<->kernel<->distributed import cycle).
type ReplayFunc func(snap persistence.Snapshot, journal []action.WorldEvent) error

// Validate runs the full 8-step acceptance contract for a candidate block
// (§4.5). Any failure returns a DistributedValidationFailed-coded error.
func Validate(
	head Head,
	block WorldBlock,
	manifest persistence.Manifest,
	segments []persistence.Segment,
	cas *persistence.CAS,
	snapshot persistence.Snapshot,
	actions []action.Action,
	receipts []Receipt,
	replay ReplayFunc,
) error {
	// 1. world_id must match the head. height may equal the head's or be its
	// successor; state_root is compared with the head's only when the
	// heights are equal.
	if head.WorldID != block.WorldID {
		return fail("world_id mismatch")
	}
	if head.Height+1 != block.Height && head.Height != block.Height {
		return fail("height is not the head or its successor")
	}
	if head.StateRoot != block.StateRoot && head.Height == block.Height {
		return fail("state_root mismatch for repeated height")
	}

	// 2. manifest.state_root must match the block's state_root before we
	// trust the manifest enough to hash it for the snapshot_ref check below.
	if manifest.StateRoot != block.StateRoot {
		return fail("state_root mismatch")
	}

	// snapshot_ref == BLAKE3(canonical_cbor(manifest)).
	snapshotRef, err := codec.HashCanonical(manifest)
	if err != nil {
		return errs.Wrap(errs.CodeDistributedValidation, "hash snapshot manifest", err)
	}
	if snapshotRef != block.SnapshotRef {
		return fail("snapshot_ref mismatch")
	}

	// 3. journal_ref == BLAKE3(canonical_cbor(segments)).
	journalRef, err := codec.HashCanonical(segments)
	if err != nil {
		return errs.Wrap(errs.CodeDistributedValidation, "hash journal segments", err)
	}
	if journalRef != block.JournalRef {
		return fail("journal_ref mismatch")
	}

	// 4. assembled snapshot chunks hash to manifest.state_root.
	if _, err := persistence.Assemble(cas, manifest); err != nil {
		return errs.Wrap(errs.CodeDistributedValidation, "assemble snapshot", err)
	}

	// 5. assembled journal is contiguous and its length equals
	// snapshot.journal_len.
	events, err := persistence.AssembleJournal(cas, segments)
	if err != nil {
		return errs.Wrap(errs.CodeDistributedValidation, "assemble journal", err)
	}
	if len(segments) > 0 && events != nil && len(events) > 0 {
		if events[0].ID != segments[0].FromEventID {
			return fail("journal does not start at the first segment's from_event_id")
		}
	}
	if len(events) != snapshot.JournalLen {
		return fail("assembled journal length does not match snapshot.journal_len")
	}

	// 6. recomputed roots match.
	actionRoot, err := codec.HashCanonical(actions)
	if err != nil {
		return errs.Wrap(errs.CodeDistributedValidation, "hash actions", err)
	}
	if actionRoot != block.ActionRoot {
		return fail("action_root mismatch")
	}
	eventRoot, err := codec.HashCanonical(events)
	if err != nil {
		return errs.Wrap(errs.CodeDistributedValidation, "hash events", err)
	}
	if eventRoot != block.EventRoot {
		return fail("event_root mismatch")
	}
	receiptsRoot, err := codec.HashCanonical(receipts)
	if err != nil {
		return errs.Wrap(errs.CodeDistributedValidation, "hash receipts", err)
	}
	if receiptsRoot != block.ReceiptsRoot {
		return fail("receipts_root mismatch")
	}

	// 7. head.block_hash == BLAKE3(canonical_cbor(block)).
	computedHash, err := BlockHash(block)
	if err != nil {
		return errs.Wrap(errs.CodeDistributedValidation, "hash block", err)
	}
	if computedHash != head.BlockHash && head.BlockHash != "" {
		return fail("block_hash mismatch against head")
	}

	// 8. World::from_snapshot(snapshot, journal) succeeds (replay admissibility).
	if replay != nil {
		if err := replay(snapshot, events); err != nil {
			return errs.Wrap(errs.CodeDistributedValidation, "replay admissibility failed", err)
		}
	}

	return nil
}

func fail(reason string) error {
	return errs.New(errs.CodeDistributedValidation, reason)
}

// BuildBlock computes a WorldBlock's roots from the pieces that would back
// it, for use by a proposer assembling a new head.
func BuildBlock(worldID string, height uint64, parentHash string, manifest persistence.Manifest, segments []persistence.Segment, stateRoot string, actions []action.Action, events []action.WorldEvent, receipts []Receipt, timestampMs int64) (WorldBlock, error) {
	snapshotRef, err := codec.HashCanonical(manifest)
	if err != nil {
		return WorldBlock{}, err
	}
	journalRef, err := codec.HashCanonical(segments)
	if err != nil {
		return WorldBlock{}, err
	}
	actionRoot, err := codec.HashCanonical(actions)
	if err != nil {
		return WorldBlock{}, err
	}
	eventRoot, err := codec.HashCanonical(events)
	if err != nil {
		return WorldBlock{}, err
	}
	receiptsRoot, err := codec.HashCanonical(receipts)
	if err != nil {
		return WorldBlock{}, err
	}
	return WorldBlock{
		WorldID: worldID, Height: height, ParentHash: parentHash, StateRoot: stateRoot,
		ActionRoot: actionRoot, EventRoot: eventRoot, ReceiptsRoot: receiptsRoot,
		SnapshotRef: snapshotRef, JournalRef: journalRef, TimestampMs: timestampMs,
	}, nil
}
