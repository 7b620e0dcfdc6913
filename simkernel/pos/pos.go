// Package pos implements the PoS adapter gating distributed head
// publication: validator set, epoch/slot proposer selection, and
// attestation-based commit decisions (§4.6, I7, P8, P9).
package pos

import (
	"sort"

	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
)

// ValidatorSet maps validator id to staked weight.
type ValidatorSet struct {
	Stakes map[string]uint64 `cbor:"stakes"`
}

// TotalStake sums the set's stake.
func (s ValidatorSet) TotalStake() uint64 {
	var total uint64
	for _, v := range s.Stakes {
		total += v
	}
	return total
}

// sortedValidatorIDs returns validator ids in ascending lexical order, the
// tie-break basis for deterministic proposer selection.
func (s ValidatorSet) sortedValidatorIDs() []string {
	ids := make([]string, 0, len(s.Stakes))
	for id := range s.Stakes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RequiredStake computes ceil(total * num / denom); the spec requires
// num/denom > 1/2 (a true supermajority), which callers must enforce when
// constructing the gate.
func RequiredStake(total uint64, num, denom uint64) uint64 {
	if denom == 0 {
		return total
	}
	return (total*num + denom - 1) / denom
}

// EpochLength divides slot by epochLengthSlots to get the epoch index.
func EpochLength(slot, epochLengthSlots uint64) uint64 {
	if epochLengthSlots == 0 {
		return 0
	}
	return slot / epochLengthSlots
}

// ProposerForSlot deterministically selects the expected proposer for slot
// from the validator set: hash(slot) mod total stake, walking validators in
// sorted-ID order and picking the one whose cumulative stake range contains
// the target — the same stake-weighted tie-break pattern as the kernel's
// other deterministic selections.
func ProposerForSlot(set ValidatorSet, slot uint64) (string, error) {
	total := set.TotalStake()
	if total == 0 {
		return "", errs.New(errs.CodeInvalidState, "validator set has zero total stake")
	}
	ids := set.sortedValidatorIDs()
	digest := codec.MustHashCanonical(struct {
		Slot uint64 `cbor:"slot"`
	}{slot})
	target := hashToUint64(digest) % total

	var cursor uint64
	for _, id := range ids {
		cursor += set.Stakes[id]
		if target < cursor {
			return id, nil
		}
	}
	return ids[len(ids)-1], nil
}

func hashToUint64(hexDigest string) uint64 {
	var v uint64
	for i := 0; i < len(hexDigest) && i < 16; i++ {
		c := hexDigest[i]
		var nibble uint64
		switch {
		case c >= '0' && c <= '9':
			nibble = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			nibble = uint64(c-'a') + 10
		default:
			continue
		}
		v = v<<4 | nibble
	}
	return v
}

// Decision is the outcome of tallying a committee's attestations for one
// proposed head (P8).
type Decision string

const (
	DecisionCommitted Decision = "committed"
	DecisionRejected  Decision = "rejected"
	DecisionPending   Decision = "pending"
)

// Vote records one validator's attestation for a (world_id, height,
// block_hash) head proposal.
type Vote struct {
	Validator   string `cbor:"validator"`
	Approve     bool   `cbor:"approve"`
	NowMs       int64  `cbor:"now_ms"`
	SourceEpoch uint64 `cbor:"source_epoch"`
	TargetEpoch uint64 `cbor:"target_epoch"`
	Reason      string `cbor:"reason,omitempty"`
}

// headKey identifies one proposed head under attestation.
type headKey struct {
	WorldID   string
	Height    uint64
	BlockHash string
}

type lastVote struct {
	Vote
	BlockHash string
}

// Gate tracks attestation state across heads for one validator set, applying
// the required-stake threshold to decide Committed/Rejected/Pending (§4.6)
// and rejecting double-votes / surround-votes without mutating state (P9).
type Gate struct {
	Set        ValidatorSet
	Num, Denom uint64
	votes      map[headKey][]Vote
	lastByVote map[string]lastVote // validator -> most recent vote across all heads, for double/surround detection
}

// NewGate returns a gate requiring num/denom (>1/2) of total stake to commit.
func NewGate(set ValidatorSet, num, denom uint64) *Gate {
	return &Gate{Set: set, Num: num, Denom: denom, votes: map[headKey][]Vote{}, lastByVote: map[string]lastVote{}}
}

// ProposeHead validates that proposer is the expected proposer for slot, and
// on success auto-records the proposer's own approval attestation for
// (worldID, height, blockHash).
func (g *Gate) ProposeHead(worldID string, height uint64, blockHash string, proposer string, slot uint64, nowMs int64, sourceEpoch, targetEpoch uint64) error {
	expected, err := ProposerForSlot(g.Set, slot)
	if err != nil {
		return err
	}
	if proposer != expected {
		return errs.Newf(errs.CodeInvalidState, "proposer %q does not match expected proposer %q for slot %d", proposer, expected, slot)
	}
	return g.AttestHead(worldID, height, blockHash, proposer, true, nowMs, sourceEpoch, targetEpoch, "")
}

// AttestHead records validator's vote on (worldID, height, blockHash).
// Rejects, without mutating any state, a double-vote (same target epoch,
// different block hash from this validator's most recent vote) or a
// surround-vote (this vote's [source,target) epoch interval strictly
// contains, or is strictly contained by, the validator's prior interval,
// whatever the block hash) (P9).
func (g *Gate) AttestHead(worldID string, height uint64, blockHash string, validator string, approve bool, nowMs int64, sourceEpoch, targetEpoch uint64, reason string) error {
	if _, ok := g.Set.Stakes[validator]; !ok {
		return errs.Newf(errs.CodeInvalidState, "unknown validator %q", validator)
	}
	vote := Vote{Validator: validator, Approve: approve, NowMs: nowMs, SourceEpoch: sourceEpoch, TargetEpoch: targetEpoch, Reason: reason}

	if prior, ok := g.lastByVote[validator]; ok {
		if prior.TargetEpoch == targetEpoch && prior.BlockHash != blockHash {
			return errs.Newf(errs.CodeInvalidState, "validator %q double-voted for target epoch %d", validator, targetEpoch)
		}
		if surrounds(prior.SourceEpoch, prior.TargetEpoch, sourceEpoch, targetEpoch) {
			return errs.Newf(errs.CodeInvalidState, "validator %q cast a surround vote", validator)
		}
	}

	key := headKey{WorldID: worldID, Height: height, BlockHash: blockHash}
	g.votes[key] = append(g.votes[key], vote)
	g.lastByVote[validator] = lastVote{Vote: vote, BlockHash: blockHash}
	return nil
}

// surrounds reports whether interval [a0,a1) strictly contains [b0,b1) or
// vice versa (the surround-vote pattern banned by P9).
func surrounds(a0, a1, b0, b1 uint64) bool {
	if a0 < b0 && a1 > b1 {
		return true
	}
	if b0 < a0 && b1 > a1 {
		return true
	}
	return false
}

// Decide tallies stake for (worldID, height, blockHash): Committed once
// approved stake reaches the required threshold, Rejected once rejected
// stake exceeds what the required threshold could still tolerate, else
// Pending (§4.6).
func (g *Gate) Decide(worldID string, height uint64, blockHash string) Decision {
	total := g.Set.TotalStake()
	if total == 0 {
		return DecisionPending
	}
	required := RequiredStake(total, g.Num, g.Denom)

	key := headKey{WorldID: worldID, Height: height, BlockHash: blockHash}
	var approved, rejected uint64
	for _, v := range g.votes[key] {
		stake := g.Set.Stakes[v.Validator]
		if v.Approve {
			approved += stake
		} else {
			rejected += stake
		}
	}
	if approved >= required {
		return DecisionCommitted
	}
	if rejected > total-required {
		return DecisionRejected
	}
	return DecisionPending
}
