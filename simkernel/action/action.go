// Package action defines the Action tagged union submitted to the kernel
// (§4.1) and the monotonic WorldTime tick counter (§3.1).
package action

import "github.com/eng-cc/agent-world-sub009/simkernel/world"

// WorldTime is the kernel's 64-bit tick counter; it advances by exactly 1 per
// successful step() (§3.1). Rule hooks and module calls never advance it.
type WorldTime int64

// Kind names an action variant with a stable snake_case tag, matching the
// convention §9 mandates for dynamic dispatch by kind ("a centralized
// *_kind_label mapping keeps metric keys stable").
type Kind string

const (
	KindRegisterAgent        Kind = "register_agent"
	KindMoveAgent            Kind = "move_agent"
	KindBuildFactory         Kind = "build_factory"
	KindScheduleRecipe       Kind = "schedule_recipe"
	KindGrantDataAccess      Kind = "grant_data_access"
	KindRevokeDataAccess     Kind = "revoke_data_access"
	KindTransferData         Kind = "transfer_data"
	KindCollectData          Kind = "collect_data"
	KindOpenEconomicContract Kind = "open_economic_contract"
	KindAcceptContract       Kind = "accept_economic_contract"
	KindSettleContract       Kind = "settle_economic_contract"
	KindFormAlliance         Kind = "form_alliance"
	KindDeclareWar           Kind = "declare_war"
	KindConcludeWar          Kind = "conclude_war"
	KindOpenProposal         Kind = "open_governance_proposal"
	KindCastVote             Kind = "cast_vote"
	KindFinalizeProposal     Kind = "finalize_governance_proposal"
	KindSpawnCrisis          Kind = "spawn_crisis"
	KindResolveCrisis        Kind = "resolve_crisis"
	KindDeployArtifact       Kind = "deploy_module_artifact"
	KindListArtifact         Kind = "list_module_artifact"
	KindDelistArtifact       Kind = "delist_module_artifact"
	KindDestroyArtifact      Kind = "destroy_module_artifact"
	KindBidOnArtifact        Kind = "bid_on_module_artifact"
	KindCancelArtifactBid    Kind = "cancel_module_artifact_bid"
	KindAcceptArtifactBid    Kind = "accept_module_artifact_bid"
)

// Action is a tagged union: exactly one of the typed payload fields matching
// Kind is non-nil. This keeps dynamic dispatch a type switch on Kind while
// avoiding an `interface{}` payload that would defeat canonical CBOR encoding.
type Action struct {
	ID   world.ActionID `cbor:"id"`
	Kind Kind           `cbor:"kind"`

	RegisterAgent        *RegisterAgentPayload        `cbor:"register_agent,omitempty"`
	MoveAgent             *MoveAgentPayload            `cbor:"move_agent,omitempty"`
	BuildFactory          *BuildFactoryPayload         `cbor:"build_factory,omitempty"`
	ScheduleRecipe        *ScheduleRecipePayload       `cbor:"schedule_recipe,omitempty"`
	GrantDataAccess       *GrantDataAccessPayload      `cbor:"grant_data_access,omitempty"`
	RevokeDataAccess      *RevokeDataAccessPayload     `cbor:"revoke_data_access,omitempty"`
	TransferData          *TransferDataPayload         `cbor:"transfer_data,omitempty"`
	CollectData           *CollectDataPayload          `cbor:"collect_data,omitempty"`
	OpenEconomicContract  *OpenEconomicContractPayload `cbor:"open_economic_contract,omitempty"`
	AcceptContract        *AcceptContractPayload       `cbor:"accept_contract,omitempty"`
	SettleContract        *SettleContractPayload       `cbor:"settle_contract,omitempty"`
	FormAlliance          *FormAlliancePayload         `cbor:"form_alliance,omitempty"`
	DeclareWar            *DeclareWarPayload           `cbor:"declare_war,omitempty"`
	ConcludeWar           *ConcludeWarPayload          `cbor:"conclude_war,omitempty"`
	OpenProposal          *OpenProposalPayload         `cbor:"open_proposal,omitempty"`
	CastVote              *CastVotePayload             `cbor:"cast_vote,omitempty"`
	FinalizeProposal      *FinalizeProposalPayload     `cbor:"finalize_proposal,omitempty"`
	SpawnCrisis           *SpawnCrisisPayload          `cbor:"spawn_crisis,omitempty"`
	ResolveCrisis         *ResolveCrisisPayload        `cbor:"resolve_crisis,omitempty"`
	DeployArtifact        *DeployArtifactPayload       `cbor:"deploy_artifact,omitempty"`
	ListArtifact          *ListArtifactPayload         `cbor:"list_artifact,omitempty"`
	DelistArtifact        *DelistArtifactPayload       `cbor:"delist_artifact,omitempty"`
	DestroyArtifact       *DestroyArtifactPayload      `cbor:"destroy_artifact,omitempty"`
	BidOnArtifact         *BidOnArtifactPayload        `cbor:"bid_on_artifact,omitempty"`
	CancelArtifactBid     *CancelArtifactBidPayload    `cbor:"cancel_artifact_bid,omitempty"`
	AcceptArtifactBid     *AcceptArtifactBidPayload    `cbor:"accept_artifact_bid,omitempty"`
}

type RegisterAgentPayload struct {
	AgentID    world.AgentID    `cbor:"agent_id"`
	LocationID world.LocationID `cbor:"location_id"`
	Pos        world.GeoPos     `cbor:"pos"`
}

type MoveAgentPayload struct {
	AgentID       world.AgentID    `cbor:"agent_id"`
	TargetLocation world.LocationID `cbor:"target_location"`
	PerKmRate     int64            `cbor:"per_km_rate"`
}

type BuildFactoryPayload struct {
	OwnerAgentID world.AgentID     `cbor:"owner_agent_id"`
	Spec         world.FactorySpec `cbor:"spec"`
}

type ScheduleRecipePayload struct {
	Spec world.RecipeSpec `cbor:"spec"`
}

type GrantDataAccessPayload struct {
	FromAgentID world.AgentID `cbor:"from_agent_id"`
	ToAgentID   world.AgentID `cbor:"to_agent_id"`
}

type RevokeDataAccessPayload struct {
	FromAgentID world.AgentID `cbor:"from_agent_id"`
	ToAgentID   world.AgentID `cbor:"to_agent_id"`
}

type TransferDataPayload struct {
	FromAgentID world.AgentID `cbor:"from_agent_id"`
	ToAgentID   world.AgentID `cbor:"to_agent_id"`
	Amount      int64         `cbor:"amount"`
}

type CollectDataPayload struct {
	CollectorAgentID world.AgentID `cbor:"collector_agent_id"`
	ElectricityCost  int64         `cbor:"electricity_cost"`
	DataAmount       int64         `cbor:"data_amount"`
}

type OpenEconomicContractPayload struct {
	ContractID          string               `cbor:"contract_id"`
	OpenerAgentID       world.AgentID        `cbor:"opener_agent_id"`
	CounterpartyAgentID world.AgentID        `cbor:"counterparty_agent_id"`
	Terms               world.ContractTerms  `cbor:"terms"`
	ExpiresAt           int64                `cbor:"expires_at"`
}

type AcceptContractPayload struct {
	ContractID string `cbor:"contract_id"`
}

type SettleContractPayload struct {
	ContractID string `cbor:"contract_id"`
}

type FormAlliancePayload struct {
	AllianceID      string          `cbor:"alliance_id"`
	MemberAgentIDs  []world.AgentID `cbor:"member_agent_ids"`
}

type DeclareWarPayload struct {
	WarID        string        `cbor:"war_id"`
	BelligerentA world.AgentID `cbor:"belligerent_a"`
	BelligerentB world.AgentID `cbor:"belligerent_b"`
}

type ConcludeWarPayload struct {
	WarID   string `cbor:"war_id"`
	Outcome string `cbor:"outcome"`
}

type OpenProposalPayload struct {
	ProposalID      string        `cbor:"proposal_id"`
	ProposerAgentID world.AgentID `cbor:"proposer_agent_id"`
	ProposalKind    string        `cbor:"proposal_kind"`
	Payload         []byte        `cbor:"payload"`
}

type CastVotePayload struct {
	ProposalID string        `cbor:"proposal_id"`
	VoterID    world.AgentID `cbor:"voter_id"`
	Approve    bool          `cbor:"approve"`
}

type FinalizeProposalPayload struct {
	ProposalID string `cbor:"proposal_id"`
}

type SpawnCrisisPayload struct {
	CrisisID   string           `cbor:"crisis_id"`
	CrisisKind string           `cbor:"crisis_kind"`
	LocationID world.LocationID `cbor:"location_id"`
	Severity   float64          `cbor:"severity"`
	TimeoutAt  int64            `cbor:"timeout_at"`
}

type ResolveCrisisPayload struct {
	CrisisID string `cbor:"crisis_id"`
}

type DeployArtifactPayload struct {
	Hash    world.ArtifactHash `cbor:"hash"`
	Bytes   []byte             `cbor:"bytes"`
	OwnerID world.AgentID      `cbor:"owner_id"`
}

type ListArtifactPayload struct {
	Hash world.ArtifactHash `cbor:"hash"`
}

type DelistArtifactPayload struct {
	Hash world.ArtifactHash `cbor:"hash"`
}

type DestroyArtifactPayload struct {
	Hash world.ArtifactHash `cbor:"hash"`
}

type BidOnArtifactPayload struct {
	Hash     world.ArtifactHash `cbor:"hash"`
	BidderID world.AgentID      `cbor:"bidder_id"`
	Price    int64              `cbor:"price"`
}

type CancelArtifactBidPayload struct {
	Hash     world.ArtifactHash `cbor:"hash"`
	BidderID world.AgentID      `cbor:"bidder_id"`
}

type AcceptArtifactBidPayload struct {
	Hash     world.ArtifactHash `cbor:"hash"`
	BidderID world.AgentID      `cbor:"bidder_id"`
}
