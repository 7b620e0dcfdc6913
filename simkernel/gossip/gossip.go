// Package gossip implements the distributed pub/sub topics of §6.4
// (replication and consensus) on top of distributed.Publisher/Subscriber,
// with bloom-filter message deduplication grounded on the mesh gossip
// manager's seen-cache pattern.
package gossip

import (
	"context"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/eng-cc/agent-world-sub009/simkernel/distributed"
)

// Topic names follow §6.4: aw.<world_id>.replication, .consensus.proposal,
// .consensus.attestation, .consensus.commit.
const (
	topicReplication           = "replication"
	topicConsensusProposal     = "consensus.proposal"
	topicConsensusAttestation  = "consensus.attestation"
	topicConsensusCommit       = "consensus.commit"
)

// ReplicationTopic builds the aw.<world_id>.replication topic name.
func ReplicationTopic(worldID string) string { return fmt.Sprintf("aw.%s.%s", worldID, topicReplication) }

// ConsensusProposalTopic builds aw.<world_id>.consensus.proposal.
func ConsensusProposalTopic(worldID string) string {
	return fmt.Sprintf("aw.%s.%s", worldID, topicConsensusProposal)
}

// ConsensusAttestationTopic builds aw.<world_id>.consensus.attestation.
func ConsensusAttestationTopic(worldID string) string {
	return fmt.Sprintf("aw.%s.%s", worldID, topicConsensusAttestation)
}

// ConsensusCommitTopic builds aw.<world_id>.consensus.commit.
func ConsensusCommitTopic(worldID string) string {
	return fmt.Sprintf("aw.%s.%s", worldID, topicConsensusCommit)
}

const (
	defaultExpectedMessages = 10_000
	defaultFalsePositive    = 0.01
)

// Router wraps a distributed.Publisher/Subscriber pair with bloom-filter
// dedup so a block re-delivered by more than one peer is only processed
// once per topic.
type Router struct {
	pub  distributed.Publisher
	sub  distributed.Subscriber
	mu   sync.Mutex
	seen map[string]*bloom.BloomFilter
}

// NewRouter binds a dedup router to a publisher/subscriber pair (typically
// the same *distributed.LoopbackTransport in-process, or a real transport
// implementation in a networked deployment).
func NewRouter(pub distributed.Publisher, sub distributed.Subscriber) *Router {
	return &Router{pub: pub, sub: sub, seen: map[string]*bloom.BloomFilter{}}
}

func (r *Router) filterFor(topic string) *bloom.BloomFilter {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.seen[topic]
	if !ok {
		f = bloom.NewWithEstimates(defaultExpectedMessages, defaultFalsePositive)
		r.seen[topic] = f
	}
	return f
}

// Publish broadcasts block on topic, skipping re-publication of a block
// already seen on that topic (identified by its own block hash).
func (r *Router) Publish(ctx context.Context, topic string, block distributed.WorldBlock) error {
	hash, err := distributed.BlockHash(block)
	if err != nil {
		return err
	}
	filter := r.filterFor(topic)
	r.mu.Lock()
	already := filter.TestAndAdd([]byte(hash))
	r.mu.Unlock()
	if already {
		return nil
	}
	return r.pub.Publish(ctx, topic, block)
}

// Subscribe returns a channel of blocks for topic, deduplicated by a bloom
// filter of its own so a block delivered more than once reaches the channel
// only once; blocks published through this router are delivered as well.
func (r *Router) Subscribe(ctx context.Context, topic string) (<-chan distributed.WorldBlock, error) {
	raw, err := r.sub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make(chan distributed.WorldBlock, 16)
	filter := bloom.NewWithEstimates(defaultExpectedMessages, defaultFalsePositive)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case block, ok := <-raw:
				if !ok {
					return
				}
				hash, err := distributed.BlockHash(block)
				if err != nil {
					continue
				}
				r.mu.Lock()
				already := filter.TestAndAdd([]byte(hash))
				r.mu.Unlock()
				if already {
					continue
				}
				select {
				case out <- block:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// FetchBlobRequest is the §6.4 FetchBlob request shape; the optional
// requester key/signature let a provider apply access control per-fetch
// without the blob layer itself needing to understand authorization.
type FetchBlobRequest struct {
	ContentHash            string `json:"content_hash"`
	RequesterPublicKeyHex   string `json:"requester_public_key_hex,omitempty"`
	RequesterSignatureHex   string `json:"requester_signature_hex,omitempty"`
}

// GetBlockRequest is the §6.4 GetBlock request shape.
type GetBlockRequest struct {
	WorldID string `json:"world_id"`
	Height  uint64 `json:"height"`
}
