package persistence

import (
	"strconv"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

const defaultSegmentTargetBytes = 1 << 20

// Segment describes one contiguous run of journaled events (§4.4). Segment
// hash is BLAKE3 of the canonical CBOR of the events slice it covers.
type Segment struct {
	FromEventID world.EventID `cbor:"from_event_id" json:"from_event_id"`
	ToEventID   world.EventID `cbor:"to_event_id" json:"to_event_id"`
	ContentHash string        `cbor:"content_hash" json:"content_hash"`
}

// SegmentJournal splits events into byte-target segments at event
// boundaries, storing each segment's encoded events in the CAS and returning
// the segment index.
func SegmentJournal(cas *CAS, events []action.WorldEvent, targetBytes int) ([]Segment, error) {
	if targetBytes <= 0 {
		targetBytes = defaultSegmentTargetBytes
	}
	var segments []Segment
	start := 0
	for start < len(events) {
		end := start
		size := 0
		for end < len(events) {
			b, err := codec.Marshal(events[end])
			if err != nil {
				return nil, err
			}
			size += len(b)
			end++
			if size >= targetBytes {
				break
			}
		}
		chunk := events[start:end]
		raw, err := codec.Marshal(chunk)
		if err != nil {
			return nil, err
		}
		hash, _, err := cas.Put(raw)
		if err != nil {
			return nil, err
		}
		segments = append(segments, Segment{
			FromEventID: chunk[0].ID,
			ToEventID:   chunk[len(chunk)-1].ID,
			ContentHash: hash,
		})
		start = end
	}
	return segments, nil
}

// AssembleJournal reconstructs the full event slice from segments in order,
// verifying contiguity: each later segment's events start at its FromEventID,
// which must directly follow the prior segment's ToEventID (the next seq in
// the same era, or seq 1 of a later era after a recovery), so ranges abut
// without gaps (§4.5 step 5).
func AssembleJournal(cas *CAS, segments []Segment) ([]action.WorldEvent, error) {
	var out []action.WorldEvent
	for i, seg := range segments {
		raw, err := cas.Get(seg.ContentHash)
		if err != nil {
			return nil, err
		}
		var chunk []action.WorldEvent
		if err := codec.Unmarshal(raw, &chunk); err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			continue
		}
		if i > 0 {
			prev, from := segments[i-1].ToEventID, seg.FromEventID
			sameEra := from.Era == prev.Era && from.Seq == prev.Seq+1
			laterEra := from.Era > prev.Era && from.Seq == 1
			if chunk[0].ID != from || !(sameEra || laterEra) {
				return nil, errNotContiguous(i)
			}
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func errNotContiguous(segmentIndex int) error {
	return &contiguityError{segmentIndex}
}

type contiguityError struct{ index int }

func (e *contiguityError) Error() string {
	return "persistence: journal segment " + strconv.Itoa(e.index) + " is not contiguous with its from_event_id"
}
