package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world-sub009/simkernel/distributed"
	"github.com/eng-cc/agent-world-sub009/simkernel/gossip"
)

// Topic names follow the aw.<world_id>.<stream> convention exactly.
func TestGossipTopicNaming(t *testing.T) {
	require.Equal(t, "aw.world-1.replication", gossip.ReplicationTopic("world-1"))
	require.Equal(t, "aw.world-1.consensus.proposal", gossip.ConsensusProposalTopic("world-1"))
	require.Equal(t, "aw.world-1.consensus.attestation", gossip.ConsensusAttestationTopic("world-1"))
	require.Equal(t, "aw.world-1.consensus.commit", gossip.ConsensusCommitTopic("world-1"))
}

// Publishing the same block twice on a topic only delivers it once to a
// subscriber — the bloom-filter dedup pattern.
func TestGossipRouterDedupesRepublishedBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := distributed.NewLoopbackTransport()
	router := gossip.NewRouter(tr, tr)

	topic := gossip.ReplicationTopic("world-1")
	ch, err := router.Subscribe(ctx, topic)
	require.NoError(t, err)

	block := distributed.WorldBlock{WorldID: "world-1", Height: 1, StateRoot: "root-1"}
	require.NoError(t, router.Publish(ctx, topic, block))
	require.NoError(t, router.Publish(ctx, topic, block))

	select {
	case got := <-ch:
		require.Equal(t, block, got)
	case <-time.After(time.Second):
		t.Fatal("expected one delivered block")
	}

	select {
	case extra := <-ch:
		t.Fatalf("unexpected second delivery: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

// Two distinct blocks both reach the subscriber; dedup only collapses exact
// repeats, never distinct heights.
func TestGossipRouterDeliversDistinctBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := distributed.NewLoopbackTransport()
	router := gossip.NewRouter(tr, tr)
	topic := gossip.ReplicationTopic("world-2")

	ch, err := router.Subscribe(ctx, topic)
	require.NoError(t, err)

	require.NoError(t, router.Publish(ctx, topic, distributed.WorldBlock{WorldID: "world-2", Height: 1}))
	require.NoError(t, router.Publish(ctx, topic, distributed.WorldBlock{WorldID: "world-2", Height: 2}))

	seen := map[uint64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case got := <-ch:
			seen[got.Height] = true
		case <-time.After(time.Second):
			t.Fatal("expected two distinct deliveries")
		}
	}
	require.True(t, seen[1])
	require.True(t, seen[2])
}
