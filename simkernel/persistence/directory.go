package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
	"github.com/eng-cc/agent-world-sub009/simkernel/log"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

const (
	distfsDir          = ".distfs-state"
	manifestFile       = "snapshot.manifest.json"
	journalSegmentFile = "journal.segments.json"
	legacySnapshotFile = "snapshot.json"
	legacyJournalFile  = "journal.json"
	auditFile          = "distfs.recovery.audit.json"
)

// AuditStatus is the recovery outcome recorded on every load (§4.4).
type AuditStatus string

const (
	AuditDistfsRestored AuditStatus = "distfs_restored"
	AuditFallbackJSON   AuditStatus = "fallback_json"
)

// AuditRecord is appended on every load attempt.
type AuditRecord struct {
	Status    AuditStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	TimestampMs int64     `json:"timestamp_ms"`
}

// Directory wraps a root path holding the sidecar layout from §6.5.
type Directory struct {
	Root string
	log  *log.Logger
}

// NewDirectory binds persistence operations to root.
func NewDirectory(root string) *Directory {
	return &Directory{Root: root, log: log.Default("persistence")}
}

// Save writes the distfs sidecar (manifest + chunks + journal segments) and a
// legacy snapshot.json/journal.json pair for backward compatibility (§4.4).
func (d *Directory) Save(cas *CAS, snap Snapshot, events []action.WorldEvent, nowMs int64) error {
	sideDir := filepath.Join(d.Root, distfsDir)
	if err := os.MkdirAll(sideDir, 0o755); err != nil {
		return errs.Wrap(errs.CodeIO, "mkdir distfs sidecar", err)
	}

	manifest, _, err := ChunkAndStore(cas, snap, defaultChunkSize)
	if err != nil {
		return err
	}
	segments, err := SegmentJournal(cas, events, defaultSegmentTargetBytes)
	if err != nil {
		return err
	}
	if err := d.writeChunkBlobs(cas, manifest.Chunks); err != nil {
		return err
	}
	if err := d.writeChunkBlobs(cas, segmentRefsAsChunkRefs(segments)); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(d.Root, manifestFile), manifest); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(d.Root, journalSegmentFile), segments); err != nil {
		return err
	}

	// Legacy fallback pair.
	legacySnap, err := json.MarshalIndent(legacySnapshotView(snap), "", "  ")
	if err != nil {
		return errs.Wrap(errs.CodeSerde, "marshal legacy snapshot", err)
	}
	if err := os.WriteFile(filepath.Join(d.Root, legacySnapshotFile), legacySnap, 0o644); err != nil {
		return errs.Wrap(errs.CodeIO, "write legacy snapshot", err)
	}
	legacyJournal, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return errs.Wrap(errs.CodeSerde, "marshal legacy journal", err)
	}
	if err := os.WriteFile(filepath.Join(d.Root, legacyJournalFile), legacyJournal, 0o644); err != nil {
		return errs.Wrap(errs.CodeIO, "write legacy journal", err)
	}

	return d.appendAudit(AuditRecord{Status: AuditDistfsRestored, TimestampMs: nowMs})
}

// Load attempts the distfs sidecar first; on any failure it falls back to
// the legacy JSON pair, recording an audit record for either path (§4.4).
func (d *Directory) Load(cas *CAS, nowMs int64) (Snapshot, []action.WorldEvent, error) {
	snap, events, err := d.loadDistfs(cas)
	if err == nil {
		_ = d.appendAudit(AuditRecord{Status: AuditDistfsRestored, TimestampMs: nowMs})
		return snap, events, nil
	}
	d.log.Warn("distfs load failed, falling back to legacy json", log.Err(err))

	snap, events, ferr := d.loadLegacy()
	if ferr != nil {
		return Snapshot{}, nil, ferr
	}
	_ = d.appendAudit(AuditRecord{Status: AuditFallbackJSON, Reason: err.Error(), TimestampMs: nowMs})
	return snap, events, nil
}

func (d *Directory) loadDistfs(cas *CAS) (Snapshot, []action.WorldEvent, error) {
	var manifest Manifest
	if err := readJSON(filepath.Join(d.Root, manifestFile), &manifest); err != nil {
		return Snapshot{}, nil, err
	}
	var segments []Segment
	if err := readJSON(filepath.Join(d.Root, journalSegmentFile), &segments); err != nil {
		return Snapshot{}, nil, err
	}
	if err := d.loadChunkBlobsInto(cas, manifest.Chunks); err != nil {
		return Snapshot{}, nil, err
	}
	if err := d.loadChunkBlobsInto(cas, segmentRefsAsChunkRefs(segments)); err != nil {
		return Snapshot{}, nil, err
	}
	raw, err := Assemble(cas, manifest)
	if err != nil {
		return Snapshot{}, nil, err
	}
	var snap Snapshot
	if err := codec.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, nil, errs.Wrap(errs.CodeSerde, "decode snapshot", err)
	}
	events, err := AssembleJournal(cas, segments)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return snap, events, nil
}

func (d *Directory) loadLegacy() (Snapshot, []action.WorldEvent, error) {
	var legacy legacySnapshotJSON
	if err := readJSON(filepath.Join(d.Root, legacySnapshotFile), &legacy); err != nil {
		return Snapshot{}, nil, errs.Wrap(errs.CodeIO, "load legacy snapshot", err)
	}
	var events []action.WorldEvent
	if err := readJSON(filepath.Join(d.Root, legacyJournalFile), &events); err != nil {
		return Snapshot{}, nil, errs.Wrap(errs.CodeIO, "load legacy journal", err)
	}
	return legacy.toSnapshot(), events, nil
}

func (d *Directory) writeChunkBlobs(cas *CAS, refs []ChunkRef) error {
	dir := filepath.Join(d.Root, distfsDir)
	for _, ref := range refs {
		b, err := cas.Get(ref.ContentHash)
		if err != nil {
			return err
		}
		// Get returns the decompressed bytes, so the on-disk blob holds the
		// raw bytes uncompressed; compression stays inside the in-memory CAS.
		if err := os.WriteFile(filepath.Join(dir, ref.ContentHash), b, 0o644); err != nil {
			return errs.Wrap(errs.CodeIO, "write chunk blob", err)
		}
	}
	return nil
}

func (d *Directory) loadChunkBlobsInto(cas *CAS, refs []ChunkRef) error {
	dir := filepath.Join(d.Root, distfsDir)
	for _, ref := range refs {
		if cas.Has(ref.ContentHash) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, ref.ContentHash))
		if err != nil {
			return errs.Wrap(errs.CodeIO, "read chunk blob", err)
		}
		if _, _, err := cas.Put(b); err != nil {
			return err
		}
	}
	return nil
}

func (d *Directory) appendAudit(rec AuditRecord) error {
	path := filepath.Join(d.Root, auditFile)
	var records []AuditRecord
	_ = readJSON(path, &records)
	records = append(records, rec)
	return writeJSON(path, records)
}

func segmentRefsAsChunkRefs(segments []Segment) []ChunkRef {
	out := make([]ChunkRef, 0, len(segments))
	for _, s := range segments {
		out = append(out, ChunkRef{ContentHash: s.ContentHash})
	}
	return out
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.Wrap(errs.CodeSerde, "marshal json", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errs.Wrap(errs.CodeIO, "write "+filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(errs.CodeIO, "read "+filepath.Base(path), err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errs.Wrap(errs.CodeSerde, "unmarshal "+filepath.Base(path), err)
	}
	return nil
}

// legacySnapshotJSON is the human-facing sidecar form (§6.2: "JSON is used
// only for human-facing sidecars"); it carries the same fields as Snapshot
// through the json tags rather than cbor tags.
type legacySnapshotJSON struct {
	Version               int              `json:"version"`
	ChunkGenSchemaVersion int              `json:"chunk_gen_schema_version"`
	Time                  action.WorldTime `json:"time"`
	State                 *world.State     `json:"state"`
	NextActionSeq         uint64           `json:"next_action_id"`
	NextEventSeq          uint64           `json:"next_event_id"`
	ActionEra             uint64           `json:"action_era"`
	EventEra              uint64           `json:"event_era"`
	JournalLen            int              `json:"journal_len"`
	PendingActions        []action.Action  `json:"pending_actions"`
}

func legacySnapshotView(s Snapshot) legacySnapshotJSON {
	return legacySnapshotJSON{
		Version: s.Version, ChunkGenSchemaVersion: s.ChunkGenSchemaVersion, Time: s.Time,
		State:         s.State,
		NextActionSeq: s.NextActionSeq, NextEventSeq: s.NextEventSeq,
		ActionEra: s.ActionEra, EventEra: s.EventEra,
		JournalLen: s.JournalLen, PendingActions: s.PendingActions,
	}
}

func (l legacySnapshotJSON) toSnapshot() Snapshot {
	return Snapshot{
		Version: l.Version, ChunkGenSchemaVersion: l.ChunkGenSchemaVersion, Time: l.Time,
		State:         l.State,
		NextActionSeq: l.NextActionSeq, NextEventSeq: l.NextEventSeq,
		ActionEra: l.ActionEra, EventEra: l.EventEra,
		JournalLen: l.JournalLen, PendingActions: l.PendingActions,
	}
}

// RetentionPolicy bounds how many snapshot catalog entries are kept.
type RetentionPolicy struct {
	MaxSnapshots int
}

// CatalogEntry names one retained snapshot directory by creation order.
type CatalogEntry struct {
	Path      string
	CreatedAt int64
}

// Prune removes the oldest entries beyond policy.MaxSnapshots from both the
// catalog slice and their on-disk directories, atomically from the caller's
// perspective: catalog and disk are updated together, oldest first.
func Prune(policy RetentionPolicy, catalog []CatalogEntry) ([]CatalogEntry, error) {
	if policy.MaxSnapshots <= 0 || len(catalog) <= policy.MaxSnapshots {
		return catalog, nil
	}
	sorted := append([]CatalogEntry(nil), catalog...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt < sorted[j].CreatedAt })
	toRemove := len(sorted) - policy.MaxSnapshots
	removed := map[string]bool{}
	for i := 0; i < toRemove; i++ {
		if err := os.RemoveAll(sorted[i].Path); err != nil {
			return catalog, errs.Wrap(errs.CodeIO, "prune snapshot directory", err)
		}
		removed[sorted[i].Path] = true
	}
	out := make([]CatalogEntry, 0, len(catalog)-toRemove)
	for _, c := range catalog {
		if !removed[c.Path] {
			out = append(out, c)
		}
	}
	return out, nil
}
