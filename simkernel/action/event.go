package action

import "github.com/eng-cc/agent-world-sub009/simkernel/world"

// EventKind names a WorldEvent variant with a stable snake_case tag, mirroring
// Kind's convention for Action.
type EventKind string

const (
	EventAgentRegistered          EventKind = "agent_registered"
	EventAgentMoved               EventKind = "agent_moved"
	EventDataAccessGranted        EventKind = "data_access_granted"
	EventDataAccessRevoked        EventKind = "data_access_revoked"
	EventResourceTransferred      EventKind = "resource_transferred"
	EventDataCollected            EventKind = "data_collected"
	EventFactoryBuildStarted      EventKind = "factory_build_started"
	EventFactoryBuilt             EventKind = "factory_built"
	EventRecipeStarted            EventKind = "recipe_started"
	EventRecipeCompleted          EventKind = "recipe_completed"
	EventEconomicContractOpened   EventKind = "economic_contract_opened"
	EventEconomicContractAccepted EventKind = "economic_contract_accepted"
	EventEconomicContractSettled  EventKind = "economic_contract_settled"
	EventEconomicContractExpired  EventKind = "economic_contract_expired"
	EventAllianceFormed           EventKind = "alliance_formed"
	EventWarDeclared              EventKind = "war_declared"
	EventWarConcluded             EventKind = "war_concluded"
	EventGovernanceProposalOpened EventKind = "governance_proposal_opened"
	EventVoteCast                 EventKind = "vote_cast"
	EventGovernanceFinalized      EventKind = "governance_proposal_finalized"
	EventCrisisSpawned            EventKind = "crisis_spawned"
	EventCrisisResolved           EventKind = "crisis_resolved"
	EventCrisisTimedOut           EventKind = "crisis_timed_out"

	EventModuleArtifactDeployed  EventKind = "module_artifact_deployed"
	EventModuleArtifactListed    EventKind = "module_artifact_listed"
	EventModuleArtifactDelisted  EventKind = "module_artifact_delisted"
	EventModuleArtifactDestroyed    EventKind = "module_artifact_destroyed"
	EventModuleArtifactBidPlaced    EventKind = "module_artifact_bid_placed"
	EventModuleArtifactBidCancelled EventKind = "module_artifact_bid_cancelled"
	EventModuleArtifactSold         EventKind = "module_artifact_sale_completed"

	EventModuleInstalled     EventKind = "module_installed"
	EventModuleActivated     EventKind = "module_activated"
	EventModuleUpgraded      EventKind = "module_upgraded"
	EventModuleDeactivated   EventKind = "module_deactivated"
	EventModuleDestroyed     EventKind = "module_destroyed"
	EventModuleCallFailed    EventKind = "module_call_failed"
	EventModuleEmitted       EventKind = "module_emitted"
	EventModuleStateUpdated  EventKind = "module_state_updated"
	EventModuleRuntimeCharged EventKind = "module_runtime_charged"

	EventSnapshotCreated        EventKind = "snapshot_created"
	EventManifestUpdated        EventKind = "manifest_updated"
	EventRollbackApplied        EventKind = "rollback_applied"
	EventEffectQueued           EventKind = "effect_queued"
	EventReceiptAppended        EventKind = "receipt_appended"
	EventPolicyDecisionRecorded EventKind = "policy_decision_recorded"
	EventRuleDecisionRecorded   EventKind = "rule_decision_recorded"
	EventActionOverridden       EventKind = "action_overridden"
	EventGovernanceAction       EventKind = "governance_action"

	EventActionRejected EventKind = "action_rejected"
)

// WorldEvent is the tagged union every step() produces exactly one of per
// submitted action: either a domain event recording what happened, or an
// ActionRejected carrying the reason. Events are the only thing the journal
// and distributed head ever see (§4.1, §6.1).
type WorldEvent struct {
	ID     world.EventID  `cbor:"id"`
	Kind   EventKind      `cbor:"kind"`
	Caused world.ActionID `cbor:"caused_by_action_id"`
	At     WorldTime      `cbor:"at"`

	AgentRegistered          *AgentRegisteredPayload          `cbor:"agent_registered,omitempty"`
	AgentMoved               *AgentMovedPayload               `cbor:"agent_moved,omitempty"`
	DataAccessGranted        *DataAccessGrantedPayload        `cbor:"data_access_granted,omitempty"`
	DataAccessRevoked        *DataAccessRevokedPayload        `cbor:"data_access_revoked,omitempty"`
	ResourceTransferred      *ResourceTransferredPayload      `cbor:"resource_transferred,omitempty"`
	DataCollected            *DataCollectedPayload            `cbor:"data_collected,omitempty"`
	FactoryBuildStarted      *FactoryBuildStartedPayload      `cbor:"factory_build_started,omitempty"`
	FactoryBuilt             *FactoryBuiltPayload             `cbor:"factory_built,omitempty"`
	RecipeStarted            *RecipeStartedPayload            `cbor:"recipe_started,omitempty"`
	RecipeCompleted          *RecipeCompletedPayload          `cbor:"recipe_completed,omitempty"`
	EconomicContractOpened   *EconomicContractOpenedPayload   `cbor:"economic_contract_opened,omitempty"`
	EconomicContractAccepted *EconomicContractAcceptedPayload `cbor:"economic_contract_accepted,omitempty"`
	EconomicContractSettled  *EconomicContractSettledPayload  `cbor:"economic_contract_settled,omitempty"`
	EconomicContractExpired  *EconomicContractExpiredPayload  `cbor:"economic_contract_expired,omitempty"`
	AllianceFormed           *AllianceFormedPayload           `cbor:"alliance_formed,omitempty"`
	WarDeclared              *WarDeclaredPayload              `cbor:"war_declared,omitempty"`
	WarConcluded             *WarConcludedPayload             `cbor:"war_concluded,omitempty"`
	GovernanceProposalOpened *GovernanceProposalOpenedPayload `cbor:"governance_proposal_opened,omitempty"`
	VoteCast                 *VoteCastPayload                 `cbor:"vote_cast,omitempty"`
	GovernanceFinalized      *GovernanceFinalizedPayload       `cbor:"governance_finalized,omitempty"`
	CrisisSpawned            *CrisisSpawnedPayload             `cbor:"crisis_spawned,omitempty"`
	CrisisResolved           *CrisisResolvedPayload            `cbor:"crisis_resolved,omitempty"`
	CrisisTimedOut           *CrisisTimedOutPayload            `cbor:"crisis_timed_out,omitempty"`

	ModuleArtifactDeployed *ModuleArtifactDeployedPayload `cbor:"module_artifact_deployed,omitempty"`
	ModuleArtifactListed   *ModuleArtifactListedPayload   `cbor:"module_artifact_listed,omitempty"`
	ModuleArtifactDelisted *ModuleArtifactDelistedPayload `cbor:"module_artifact_delisted,omitempty"`
	ModuleArtifactDestroyed    *ModuleArtifactDestroyedPayload    `cbor:"module_artifact_destroyed,omitempty"`
	ModuleArtifactBidPlaced    *ModuleArtifactBidPlacedPayload    `cbor:"module_artifact_bid_placed,omitempty"`
	ModuleArtifactBidCancelled *ModuleArtifactBidCancelledPayload `cbor:"module_artifact_bid_cancelled,omitempty"`
	ModuleArtifactSold         *ModuleArtifactSoldPayload         `cbor:"module_artifact_sold,omitempty"`

	ModuleInstalled      *ModuleInstalledPayload      `cbor:"module_installed,omitempty"`
	ModuleActivated      *ModuleActivatedPayload      `cbor:"module_activated,omitempty"`
	ModuleUpgraded       *ModuleUpgradedPayload       `cbor:"module_upgraded,omitempty"`
	ModuleDeactivated    *ModuleDeactivatedPayload    `cbor:"module_deactivated,omitempty"`
	ModuleDestroyed      *ModuleDestroyedPayload      `cbor:"module_destroyed,omitempty"`
	ModuleCallFailed     *ModuleCallFailedPayload     `cbor:"module_call_failed,omitempty"`
	ModuleEmitted        *ModuleEmittedPayload        `cbor:"module_emitted,omitempty"`
	ModuleStateUpdated   *ModuleStateUpdatedPayload   `cbor:"module_state_updated,omitempty"`
	ModuleRuntimeCharged *ModuleRuntimeChargedPayload `cbor:"module_runtime_charged,omitempty"`

	SnapshotCreated        *SnapshotCreatedPayload        `cbor:"snapshot_created,omitempty"`
	ManifestUpdated        *ManifestUpdatedPayload        `cbor:"manifest_updated,omitempty"`
	RollbackApplied        *RollbackAppliedPayload        `cbor:"rollback_applied,omitempty"`
	EffectQueued           *EffectQueuedPayload           `cbor:"effect_queued,omitempty"`
	ReceiptAppended        *ReceiptAppendedPayload        `cbor:"receipt_appended,omitempty"`
	PolicyDecisionRecorded *PolicyDecisionRecordedPayload `cbor:"policy_decision_recorded,omitempty"`
	RuleDecisionRecorded   *RuleDecisionRecordedPayload   `cbor:"rule_decision_recorded,omitempty"`
	ActionOverridden       *ActionOverriddenPayload       `cbor:"action_overridden,omitempty"`
	GovernanceAction       *GovernanceActionPayload       `cbor:"governance_action,omitempty"`

	ActionRejected *ActionRejectedPayload `cbor:"action_rejected,omitempty"`
}

type AgentRegisteredPayload struct {
	AgentID    world.AgentID    `cbor:"agent_id"`
	LocationID world.LocationID `cbor:"location_id"`
	Pos        world.GeoPos     `cbor:"pos"`
}

type AgentMovedPayload struct {
	AgentID     world.AgentID    `cbor:"agent_id"`
	FromLocation world.LocationID `cbor:"from_location"`
	ToLocation  world.LocationID `cbor:"to_location"`
	DistanceCm  int64            `cbor:"distance_cm"`
	CostPaid    int64            `cbor:"cost_paid"`
}

type DataAccessGrantedPayload struct {
	FromAgentID world.AgentID `cbor:"from_agent_id"`
	ToAgentID   world.AgentID `cbor:"to_agent_id"`
}

type DataAccessRevokedPayload struct {
	FromAgentID world.AgentID `cbor:"from_agent_id"`
	ToAgentID   world.AgentID `cbor:"to_agent_id"`
}

type ResourceTransferredPayload struct {
	FromAgentID world.AgentID     `cbor:"from_agent_id"`
	ToAgentID   world.AgentID     `cbor:"to_agent_id"`
	Kind        world.ResourceKind `cbor:"kind"`
	Amount      int64             `cbor:"amount"`
}

type DataCollectedPayload struct {
	CollectorAgentID world.AgentID `cbor:"collector_agent_id"`
	ElectricitySpent int64         `cbor:"electricity_spent"`
	DataGained       int64         `cbor:"data_gained"`
}

type FactoryBuildStartedPayload struct {
	FacilityID world.FacilityID `cbor:"facility_id"`
	CompleteAt int64            `cbor:"complete_at"`
}

type FactoryBuiltPayload struct {
	FacilityID world.FacilityID `cbor:"facility_id"`
}

type RecipeStartedPayload struct {
	RecipeID   string           `cbor:"recipe_id"`
	FacilityID world.FacilityID `cbor:"facility_id"`
	CompleteAt int64            `cbor:"complete_at"`
}

type RecipeCompletedPayload struct {
	RecipeID   string           `cbor:"recipe_id"`
	FacilityID world.FacilityID `cbor:"facility_id"`
}

type EconomicContractOpenedPayload struct {
	ContractID string `cbor:"contract_id"`
}

type EconomicContractAcceptedPayload struct {
	ContractID string `cbor:"contract_id"`
}

type EconomicContractSettledPayload struct {
	ContractID string `cbor:"contract_id"`
}

type EconomicContractExpiredPayload struct {
	ContractID string `cbor:"contract_id"`
}

type AllianceFormedPayload struct {
	AllianceID string `cbor:"alliance_id"`
}

type WarDeclaredPayload struct {
	WarID string `cbor:"war_id"`
}

type WarConcludedPayload struct {
	WarID   string `cbor:"war_id"`
	Outcome string `cbor:"outcome"`
}

type GovernanceProposalOpenedPayload struct {
	ProposalID string `cbor:"proposal_id"`
}

type VoteCastPayload struct {
	ProposalID string        `cbor:"proposal_id"`
	VoterID    world.AgentID `cbor:"voter_id"`
	Approve    bool          `cbor:"approve"`
}

type GovernanceFinalizedPayload struct {
	ProposalID string `cbor:"proposal_id"`
	Accepted   bool   `cbor:"accepted"`
}

type CrisisSpawnedPayload struct {
	CrisisID string `cbor:"crisis_id"`
}

type CrisisResolvedPayload struct {
	CrisisID string `cbor:"crisis_id"`
}

type CrisisTimedOutPayload struct {
	CrisisID string `cbor:"crisis_id"`
}

type ModuleArtifactDeployedPayload struct {
	Hash    world.ArtifactHash `cbor:"hash"`
	OwnerID world.AgentID      `cbor:"owner_id"`
}

type ModuleArtifactListedPayload struct {
	Hash world.ArtifactHash `cbor:"hash"`
}

type ModuleArtifactDelistedPayload struct {
	Hash world.ArtifactHash `cbor:"hash"`
}

type ModuleArtifactDestroyedPayload struct {
	Hash world.ArtifactHash `cbor:"hash"`
}

type ModuleArtifactBidPlacedPayload struct {
	Hash     world.ArtifactHash `cbor:"hash"`
	BidderID world.AgentID      `cbor:"bidder_id"`
	Price    int64              `cbor:"price"`
}

type ModuleArtifactBidCancelledPayload struct {
	Hash     world.ArtifactHash `cbor:"hash"`
	BidderID world.AgentID      `cbor:"bidder_id"`
}

type ModuleArtifactSoldPayload struct {
	Hash        world.ArtifactHash `cbor:"hash"`
	SellerID    world.AgentID      `cbor:"seller_id"`
	BuyerID     world.AgentID      `cbor:"buyer_id"`
	Price       int64              `cbor:"price"`
}

type ModuleInstalledPayload struct {
	ModuleID world.ModuleID `cbor:"module_id"`
	Version  uint64         `cbor:"version"`
}

type ModuleActivatedPayload struct {
	ModuleID world.ModuleID `cbor:"module_id"`
	Version  uint64         `cbor:"version"`
}

type ModuleUpgradedPayload struct {
	ModuleID   world.ModuleID `cbor:"module_id"`
	FromVersion uint64        `cbor:"from_version"`
	ToVersion  uint64         `cbor:"to_version"`
}

type ModuleDeactivatedPayload struct {
	ModuleID world.ModuleID `cbor:"module_id"`
	Version  uint64         `cbor:"version"`
}

type ModuleDestroyedPayload struct {
	ModuleID world.ModuleID `cbor:"module_id"`
	Version  uint64         `cbor:"version"`
}

type ModuleCallFailedPayload struct {
	ModuleID world.ModuleID `cbor:"module_id"`
	Reason   string         `cbor:"reason"`
}

type ModuleEmittedPayload struct {
	ModuleID   world.ModuleID `cbor:"module_id"`
	EmitKind   string         `cbor:"emit_kind"`
	EmitBytes  []byte         `cbor:"emit_bytes"`
}

type ModuleStateUpdatedPayload struct {
	ModuleID   world.ModuleID `cbor:"module_id"`
	ByteLength int            `cbor:"byte_length"`
}

type ModuleRuntimeChargedPayload struct {
	ModuleID        world.ModuleID `cbor:"module_id"`
	ComputeFeeData  int64          `cbor:"compute_fee_data"`
	ElectricityFee  int64          `cbor:"electricity_fee"`
}

type SnapshotCreatedPayload struct {
	StateRoot string `cbor:"state_root"`
	AtTick    int64  `cbor:"at_tick"`
}

type ManifestUpdatedPayload struct {
	ModuleID world.ModuleID `cbor:"module_id"`
	Version  uint64         `cbor:"version"`
}

type RollbackAppliedPayload struct {
	ToTick int64  `cbor:"to_tick"`
	NewEra uint64 `cbor:"new_era"`
}

type EffectQueuedPayload struct {
	ModuleID   world.ModuleID `cbor:"module_id"`
	EffectKind string         `cbor:"effect_kind"`
}

type ReceiptAppendedPayload struct {
	ReceiptHash string `cbor:"receipt_hash"`
}

type PolicyDecisionRecordedPayload struct {
	Stage   string `cbor:"stage"`
	Verdict string `cbor:"verdict"`
}

type RuleDecisionRecordedPayload struct {
	HookCount int    `cbor:"hook_count"`
	Verdict   string `cbor:"verdict"`
}

type ActionOverriddenPayload struct {
	OriginalKind Kind   `cbor:"original_kind"`
	Notes        string `cbor:"notes"`
}

type GovernanceActionPayload struct {
	ProposalID string `cbor:"proposal_id"`
	Kind       string `cbor:"kind"`
}

// ActionRejectedPayload carries the stable error code and structured detail
// for a rejected action, mirroring errs.Error's shape without importing errs
// (to keep action -> world -> errs acyclic and CBOR-friendly).
type ActionRejectedPayload struct {
	Code   string         `cbor:"code"`
	Detail string         `cbor:"detail"`
	Fields map[string]any `cbor:"fields,omitempty"`
}
