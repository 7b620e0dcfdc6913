package distributed

import (
	"context"
	"sync"

	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
)

// HeadService tracks the current accepted head per world and admits new
// blocks through Validate. Physical replication/consensus is out of scope
// (§6.7 EXPANSION); this models only the local acceptance boundary.
type HeadService interface {
	Head(ctx context.Context, worldID string) (Head, bool, error)
	Submit(ctx context.Context, block WorldBlock) error
}

// BlobService resolves content-addressed blobs (snapshot chunks, journal
// segments, module artifacts) by hash, independent of how they arrived.
type BlobService interface {
	Get(ctx context.Context, contentHash string) ([]byte, error)
	Put(ctx context.Context, data []byte) (contentHash string, err error)
}

// Publisher broadcasts an accepted block to subscribers on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, block WorldBlock) error
}

// Subscriber receives blocks published on a topic.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan WorldBlock, error)
}

// LoopbackTransport is an in-process HeadService+Publisher+Subscriber used in
// tests and single-process deployments: Submit stores the head locally without
// validating it,
// Publish fans out to any locally registered subscriber channels for the
// topic. No network I/O, matching the "transport stays out of scope" stance.
type LoopbackTransport struct {
	mu     sync.Mutex
	heads  map[string]Head
	blobs  map[string][]byte
	topics map[string][]chan WorldBlock
}

// NewLoopbackTransport returns an empty in-process transport.
func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{
		heads:  map[string]Head{},
		blobs:  map[string][]byte{},
		topics: map[string][]chan WorldBlock{},
	}
}

// Head returns the tracked head for worldID.
func (t *LoopbackTransport) Head(_ context.Context, worldID string) (Head, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.heads[worldID]
	return h, ok, nil
}

// Submit advances the tracked head to block's hash/height/state_root. Callers
// are expected to have already run Validate; Submit itself performs no
// validation so it can also seed a genesis head in tests.
func (t *LoopbackTransport) Submit(_ context.Context, block WorldBlock) error {
	hash, err := BlockHash(block)
	if err != nil {
		return errs.Wrap(errs.CodeDistributedValidation, "hash submitted block", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.heads[block.WorldID] = Head{
		WorldID:   block.WorldID,
		Height:    block.Height,
		StateRoot: block.StateRoot,
		BlockHash: hash,
	}
	return nil
}

// Get resolves a previously Put blob by hash.
func (t *LoopbackTransport) Get(_ context.Context, contentHash string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.blobs[contentHash]
	if !ok {
		return nil, errs.Newf(errs.CodeNotFound, "blob %q not found", contentHash)
	}
	return b, nil
}

// Put stores data under its own content hash, computed here with codec.Hash,
// and returns that hash.
func (t *LoopbackTransport) Put(_ context.Context, data []byte) (string, error) {
	hash := codec.Hash(data)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blobs[hash] = data
	return hash, nil
}

// Publish fans block out to every channel currently subscribed to topic.
// Sends are non-blocking: a slow or abandoned subscriber never stalls the
// publisher.
func (t *LoopbackTransport) Publish(_ context.Context, topic string, block WorldBlock) error {
	t.mu.Lock()
	subs := append([]chan WorldBlock(nil), t.topics[topic]...)
	t.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- block:
		default:
		}
	}
	return nil
}

// Subscribe registers a new buffered channel for topic.
func (t *LoopbackTransport) Subscribe(_ context.Context, topic string) (<-chan WorldBlock, error) {
	ch := make(chan WorldBlock, 16)
	t.mu.Lock()
	t.topics[topic] = append(t.topics[topic], ch)
	t.mu.Unlock()
	return ch, nil
}
