package persistence

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
)

// CAS is a content-addressed store, single-writer per content hash: a write
// of an existing hash with different bytes fails (§5). Chunk bytes are held
// brotli-compressed in memory; a bloom filter gives a fast existence probe
// before the exact map lookup, cheap insurance against scanning on every
// GetWorldHead/FetchBlob check in a large store.
type CAS struct {
	mu     sync.RWMutex
	chunks map[string][]byte // content_hash -> compressed bytes
	filter *bloom.BloomFilter
}

// NewCAS constructs an empty CAS sized for an expected chunk count.
func NewCAS(expectedChunks uint) *CAS {
	return &CAS{
		chunks: map[string][]byte{},
		filter: bloom.NewWithEstimates(expectedChunks, 0.01),
	}
}

// Put stores raw bytes under their BLAKE3 content hash, compressing with
// brotli. Returns the content hash and size of the raw (uncompressed) bytes.
func (c *CAS) Put(raw []byte) (hash string, size int, err error) {
	hash = codec.Hash(raw)
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.chunks[hash]; ok {
		dec, derr := decompress(existing)
		if derr != nil {
			return "", 0, errs.Wrap(errs.CodeIO, "failed to verify existing chunk", derr)
		}
		if !bytes.Equal(dec, raw) {
			return "", 0, errs.Newf(errs.CodeIO, "content hash %q collision with different bytes", hash)
		}
		return hash, len(raw), nil
	}
	compressed, cerr := compress(raw)
	if cerr != nil {
		return "", 0, errs.Wrap(errs.CodeIO, "failed to compress chunk", cerr)
	}
	c.chunks[hash] = compressed
	c.filter.Add([]byte(hash))
	return hash, len(raw), nil
}

// Has probes the bloom filter first (cheap negative answer), falling back to
// an exact lookup on a possible positive.
func (c *CAS) Has(hash string) bool {
	if !c.filter.Test([]byte(hash)) {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.chunks[hash]
	return ok
}

// Get retrieves and decompresses the bytes stored under hash.
func (c *CAS) Get(hash string) ([]byte, error) {
	c.mu.RLock()
	compressed, ok := c.chunks[hash]
	c.mu.RUnlock()
	if !ok {
		return nil, errs.Newf(errs.CodeNotFound, "chunk %q not found", hash)
	}
	return decompress(compressed)
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(compressed []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(compressed))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("persistence: brotli decompress: %w", err)
	}
	return out, nil
}

// ChunkRef describes one chunk's entry in a snapshot manifest.
type ChunkRef struct {
	ContentHash string `cbor:"content_hash" json:"content_hash"`
	Size        int    `cbor:"size" json:"size"`
}

// Manifest is the snapshot manifest (§4.4): concatenating chunk bytes in
// manifest order must reproduce the canonical CBOR of the snapshot, and
// StateRoot must equal BLAKE3 of that concatenation.
type Manifest struct {
	StateRoot string     `cbor:"state_root" json:"state_root"`
	Chunks    []ChunkRef `cbor:"chunks" json:"chunks"`
}

// defaultChunkSize matches the journal's default segmentation target so a
// snapshot and its journal split along comparable boundaries.
const defaultChunkSize = 1 << 20

// ChunkAndStore splits the canonical CBOR of snapshot into chunkSize-byte
// pieces (last piece may be shorter), stores each in the CAS, and returns the
// manifest plus the raw snapshot bytes.
func ChunkAndStore(cas *CAS, snap Snapshot, chunkSize int) (Manifest, []byte, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	raw, err := codec.Marshal(snap)
	if err != nil {
		return Manifest{}, nil, err
	}
	var refs []ChunkRef
	for off := 0; off < len(raw); off += chunkSize {
		end := off + chunkSize
		if end > len(raw) {
			end = len(raw)
		}
		piece := raw[off:end]
		hash, size, err := cas.Put(piece)
		if err != nil {
			return Manifest{}, nil, err
		}
		refs = append(refs, ChunkRef{ContentHash: hash, Size: size})
	}
	stateRoot := codec.Hash(raw)
	return Manifest{StateRoot: stateRoot, Chunks: refs}, raw, nil
}

// Assemble reconstructs the concatenated chunk bytes from manifest order and
// verifies BLAKE3(concat) == manifest.StateRoot (§4.5 step 4).
func Assemble(cas *CAS, m Manifest) ([]byte, error) {
	var buf bytes.Buffer
	for _, ref := range m.Chunks {
		b, err := cas.Get(ref.ContentHash)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	out := buf.Bytes()
	if codec.Hash(out) != m.StateRoot {
		return nil, errs.Newf(errs.CodeDistributedValidation, "assembled snapshot state_root mismatch")
	}
	return out, nil
}
