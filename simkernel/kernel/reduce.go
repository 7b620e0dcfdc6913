package kernel

import (
	"sort"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

const cmPerKm = 100_000

// ceilDiv divides rounding up, for non-negative operands.
func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

func errRuleDenied(notes []string) error {
	return errs.RuleDenied(notes)
}

func toRejectedPayload(err error) *action.ActionRejectedPayload {
	if e, ok := err.(*errs.Error); ok {
		return &action.ActionRejectedPayload{Code: string(e.Code()), Detail: e.Error(), Fields: e.Fields()}
	}
	return &action.ActionRejectedPayload{Code: string(errs.CodeIO), Detail: err.Error()}
}

// reduce applies the effective action to state, producing the fields of a
// successful WorldEvent (ID/Caused/At are filled in by the caller). On any
// failure it returns the error that becomes the ActionRejected detail.
func reduce(s *world.State, t action.WorldTime, act action.Action) (action.WorldEvent, error) {
	switch act.Kind {
	case action.KindRegisterAgent:
		return reduceRegisterAgent(s, act)
	case action.KindMoveAgent:
		return reduceMoveAgent(s, act)
	case action.KindBuildFactory:
		return reduceBuildFactory(s, t, act)
	case action.KindScheduleRecipe:
		return reduceScheduleRecipe(s, t, act)
	case action.KindGrantDataAccess:
		return reduceGrantDataAccess(s, act)
	case action.KindRevokeDataAccess:
		return reduceRevokeDataAccess(s, act)
	case action.KindTransferData:
		return reduceTransferData(s, act)
	case action.KindCollectData:
		return reduceCollectData(s, act)
	case action.KindOpenEconomicContract:
		return reduceOpenContract(s, act)
	case action.KindAcceptContract:
		return reduceAcceptContract(s, act)
	case action.KindSettleContract:
		return reduceSettleContract(s, act)
	case action.KindFormAlliance:
		return reduceFormAlliance(s, t, act)
	case action.KindDeclareWar:
		return reduceDeclareWar(s, t, act)
	case action.KindConcludeWar:
		return reduceConcludeWar(s, act)
	case action.KindOpenProposal:
		return reduceOpenProposal(s, t, act)
	case action.KindCastVote:
		return reduceCastVote(s, act)
	case action.KindFinalizeProposal:
		return reduceFinalizeProposal(s, t, act)
	case action.KindSpawnCrisis:
		return reduceSpawnCrisis(s, t, act)
	case action.KindResolveCrisis:
		return reduceResolveCrisis(s, t, act)
	case action.KindDeployArtifact:
		return reduceDeployArtifact(s, act)
	case action.KindListArtifact:
		return reduceListArtifact(s, act)
	case action.KindDelistArtifact:
		return reduceDelistArtifact(s, act)
	case action.KindDestroyArtifact:
		return reduceDestroyArtifact(s, act)
	case action.KindBidOnArtifact:
		return reduceBidOnArtifact(s, act)
	case action.KindCancelArtifactBid:
		return reduceCancelArtifactBid(s, act)
	case action.KindAcceptArtifactBid:
		return reduceAcceptArtifactBid(s, act)
	default:
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "unknown action kind %q", act.Kind)
	}
}

func reduceRegisterAgent(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.RegisterAgent
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing register_agent payload")
	}
	if _, exists := s.Agents[p.AgentID]; exists {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentAlreadyExists, "agent %q already registered", p.AgentID)
	}
	if _, ok := s.Locations[p.LocationID]; !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeLocationNotFound, "location %q not found", p.LocationID)
	}
	s.Agents[p.AgentID] = world.NewAgent(p.AgentID, p.LocationID, p.Pos)
	return action.WorldEvent{
		Kind:            action.EventAgentRegistered,
		AgentRegistered: &action.AgentRegisteredPayload{AgentID: p.AgentID, LocationID: p.LocationID, Pos: p.Pos},
	}, nil
}

func reduceMoveAgent(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.MoveAgent
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing move_agent payload")
	}
	ag, ok := s.Agents[p.AgentID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.AgentID)
	}
	loc, ok := s.Locations[p.TargetLocation]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeLocationNotFound, "location %q not found", p.TargetLocation)
	}
	distCm := ag.Pos.DistanceCm(loc.Pos)
	cost := ceilDiv(distCm, cmPerKm) * p.PerKmRate
	have := ag.Resources.Get(world.ResourceElectricity)
	if have < cost {
		return action.WorldEvent{}, errs.InsufficientResource(string(p.AgentID), string(world.ResourceElectricity), cost, have)
	}
	ag.Resources.Debit(world.ResourceElectricity, cost)
	fromLoc := ag.LocationID
	ag.LocationID = p.TargetLocation
	ag.Pos = loc.Pos
	return action.WorldEvent{
		Kind: action.EventAgentMoved,
		AgentMoved: &action.AgentMovedPayload{
			AgentID: p.AgentID, FromLocation: fromLoc, ToLocation: p.TargetLocation,
			DistanceCm: distCm, CostPaid: cost,
		},
	}, nil
}

func reduceBuildFactory(s *world.State, t action.WorldTime, act action.Action) (action.WorldEvent, error) {
	p := act.BuildFactory
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing build_factory payload")
	}
	ag, ok := s.Agents[p.OwnerAgentID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.OwnerAgentID)
	}
	if _, ok := s.Locations[p.Spec.LocationID]; !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeLocationNotFound, "location %q not found", p.Spec.LocationID)
	}
	if _, exists := s.Facilities[p.Spec.FacilityID]; exists {
		return action.WorldEvent{}, errs.Newf(errs.CodeFacilityAlreadyExists, "facility %q already exists", p.Spec.FacilityID)
	}

	// Atomic check-then-consume across build-cost materials: reject on the
	// first shortage, in sorted-kind order for deterministic tie-breaks.
	kinds := sortedMaterialKinds(p.Spec.BuildCostMaterials)
	for _, k := range kinds {
		need := p.Spec.BuildCostMaterials[k]
		have := ag.Cargo[string(k)]
		if have < need {
			return action.WorldEvent{}, errs.InsufficientMaterial(string(k), need, have)
		}
	}
	for _, k := range kinds {
		ag.Cargo[string(k)] -= p.Spec.BuildCostMaterials[k]
	}

	completeAt := int64(t) + p.Spec.BuildTimeTicks
	f := &world.Facility{
		ID: p.Spec.FacilityID, Kind: p.Spec.Kind, OwnerID: p.OwnerAgentID, LocationID: p.Spec.LocationID,
		Busy: true, BuildCompleteAt: completeAt, Slots: p.Spec.Slots,
	}
	s.Facilities[f.ID] = f
	s.PendingFactoryBuilds = append(s.PendingFactoryBuilds, world.PendingFactoryBuild{
		FacilityID: f.ID, CompleteAt: completeAt, Spec: p.Spec,
	})

	return action.WorldEvent{
		Kind:                 action.EventFactoryBuildStarted,
		FactoryBuildStarted:  &action.FactoryBuildStartedPayload{FacilityID: f.ID, CompleteAt: completeAt},
	}, nil
}

func reduceScheduleRecipe(s *world.State, t action.WorldTime, act action.Action) (action.WorldEvent, error) {
	p := act.ScheduleRecipe
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing schedule_recipe payload")
	}
	f, ok := s.Facilities[p.Spec.FacilityID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeFacilityNotFound, "facility %q not found", p.Spec.FacilityID)
	}
	if f.Kind != world.FacilityFactory {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "facility %q is not a factory", f.ID)
	}
	if !f.HasFreeSlot() {
		return action.WorldEvent{}, errs.Newf(errs.CodeFactoryBusy, "factory %q has no free slot", f.ID)
	}
	owner, ok := s.Agents[f.OwnerID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", f.OwnerID)
	}

	kinds := sortedMaterialKinds(p.Spec.InputMaterials)
	for _, k := range kinds {
		need := p.Spec.InputMaterials[k]
		have := owner.Cargo[string(k)]
		if have < need {
			return action.WorldEvent{}, errs.InsufficientMaterial(string(k), need, have)
		}
	}
	haveElec := owner.Resources.Get(world.ResourceElectricity)
	if haveElec < p.Spec.ElectricityCost {
		return action.WorldEvent{}, errs.InsufficientResource(string(f.OwnerID), string(world.ResourceElectricity), p.Spec.ElectricityCost, haveElec)
	}

	for _, k := range kinds {
		owner.Cargo[string(k)] -= p.Spec.InputMaterials[k]
	}
	owner.Resources.Debit(world.ResourceElectricity, p.Spec.ElectricityCost)

	completeAt := int64(t) + p.Spec.DurationTicks
	f.UsedSlots++
	f.ActiveRecipeID = p.Spec.RecipeID
	f.RecipeCompleteAt = completeAt
	s.PendingRecipes = append(s.PendingRecipes, world.PendingRecipe{
		RecipeID: p.Spec.RecipeID, FacilityID: f.ID, CompleteAt: completeAt,
	})

	return action.WorldEvent{
		Kind:           action.EventRecipeStarted,
		RecipeStarted:  &action.RecipeStartedPayload{RecipeID: p.Spec.RecipeID, FacilityID: f.ID, CompleteAt: completeAt},
	}, nil
}

func reduceGrantDataAccess(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.GrantDataAccess
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing grant_data_access payload")
	}
	from, ok := s.Agents[p.FromAgentID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.FromAgentID)
	}
	if _, ok := s.Agents[p.ToAgentID]; !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.ToAgentID)
	}
	from.DataAccessGrants[p.ToAgentID] = true
	return action.WorldEvent{
		Kind:              action.EventDataAccessGranted,
		DataAccessGranted: &action.DataAccessGrantedPayload{FromAgentID: p.FromAgentID, ToAgentID: p.ToAgentID},
	}, nil
}

func reduceRevokeDataAccess(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.RevokeDataAccess
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing revoke_data_access payload")
	}
	from, ok := s.Agents[p.FromAgentID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.FromAgentID)
	}
	delete(from.DataAccessGrants, p.ToAgentID)
	return action.WorldEvent{
		Kind:              action.EventDataAccessRevoked,
		DataAccessRevoked: &action.DataAccessRevokedPayload{FromAgentID: p.FromAgentID, ToAgentID: p.ToAgentID},
	}, nil
}

func reduceTransferData(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.TransferData
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing transfer_data payload")
	}
	from, ok := s.Agents[p.FromAgentID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.FromAgentID)
	}
	to, ok := s.Agents[p.ToAgentID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.ToAgentID)
	}
	if p.Amount <= 0 {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidAmount, "amount %d must be positive", p.Amount)
	}
	if !from.HasGranted(p.ToAgentID) {
		return action.WorldEvent{}, errs.RuleDenied([]string{"missing access grant"})
	}
	have := from.Resources.Get(world.ResourceData)
	if have < p.Amount {
		return action.WorldEvent{}, errs.InsufficientResource(string(p.FromAgentID), string(world.ResourceData), p.Amount, have)
	}
	from.Resources.Debit(world.ResourceData, p.Amount)
	to.Resources.Credit(world.ResourceData, p.Amount)
	return action.WorldEvent{
		Kind: action.EventResourceTransferred,
		ResourceTransferred: &action.ResourceTransferredPayload{
			FromAgentID: p.FromAgentID, ToAgentID: p.ToAgentID, Kind: world.ResourceData, Amount: p.Amount,
		},
	}, nil
}

func reduceCollectData(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.CollectData
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing collect_data payload")
	}
	ag, ok := s.Agents[p.CollectorAgentID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.CollectorAgentID)
	}
	if p.ElectricityCost <= 0 || p.DataAmount <= 0 {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidAmount, "electricity_cost and data_amount must be positive")
	}
	have := ag.Resources.Get(world.ResourceElectricity)
	if have < p.ElectricityCost {
		return action.WorldEvent{}, errs.InsufficientResource(string(p.CollectorAgentID), string(world.ResourceElectricity), p.ElectricityCost, have)
	}
	ag.Resources.Debit(world.ResourceElectricity, p.ElectricityCost)
	ag.Resources.Credit(world.ResourceData, p.DataAmount)
	return action.WorldEvent{
		Kind: action.EventDataCollected,
		DataCollected: &action.DataCollectedPayload{
			CollectorAgentID: p.CollectorAgentID, ElectricitySpent: p.ElectricityCost, DataGained: p.DataAmount,
		},
	}, nil
}

func reduceOpenContract(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.OpenEconomicContract
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing open_economic_contract payload")
	}
	if _, exists := s.Contracts[p.ContractID]; exists {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "contract %q already exists", p.ContractID)
	}
	if _, ok := s.Agents[p.OpenerAgentID]; !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.OpenerAgentID)
	}
	if _, ok := s.Agents[p.CounterpartyAgentID]; !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.CounterpartyAgentID)
	}
	s.Contracts[p.ContractID] = &world.EconomicContract{
		ID: p.ContractID, OpenerAgentID: p.OpenerAgentID, CounterpartyAgentID: p.CounterpartyAgentID,
		Terms: p.Terms, State: world.ContractOpened, ExpiresAt: p.ExpiresAt,
	}
	return action.WorldEvent{
		Kind:                   action.EventEconomicContractOpened,
		EconomicContractOpened: &action.EconomicContractOpenedPayload{ContractID: p.ContractID},
	}, nil
}

func reduceAcceptContract(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.AcceptContract
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing accept_contract payload")
	}
	c, ok := s.Contracts[p.ContractID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "contract %q not found", p.ContractID)
	}
	if c.State != world.ContractOpened {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "contract %q is not open", p.ContractID)
	}
	c.State = world.ContractAccepted
	return action.WorldEvent{
		Kind:                     action.EventEconomicContractAccepted,
		EconomicContractAccepted: &action.EconomicContractAcceptedPayload{ContractID: p.ContractID},
	}, nil
}

func reduceSettleContract(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.SettleContract
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing settle_contract payload")
	}
	c, ok := s.Contracts[p.ContractID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "contract %q not found", p.ContractID)
	}
	if c.State != world.ContractAccepted {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "contract %q is not accepted", p.ContractID)
	}
	opener, ok := s.Agents[c.OpenerAgentID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", c.OpenerAgentID)
	}
	counterparty, ok := s.Agents[c.CounterpartyAgentID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", c.CounterpartyAgentID)
	}
	haveResource := opener.Resources.Get(c.Terms.Resource)
	if haveResource < c.Terms.Amount {
		return action.WorldEvent{}, errs.InsufficientResource(string(c.OpenerAgentID), string(c.Terms.Resource), c.Terms.Amount, haveResource)
	}
	havePayment := counterparty.Resources.Get(world.ResourceData)
	if havePayment < c.Terms.Price {
		return action.WorldEvent{}, errs.InsufficientResource(string(c.CounterpartyAgentID), string(world.ResourceData), c.Terms.Price, havePayment)
	}
	opener.Resources.Debit(c.Terms.Resource, c.Terms.Amount)
	counterparty.Resources.Credit(c.Terms.Resource, c.Terms.Amount)
	counterparty.Resources.Debit(world.ResourceData, c.Terms.Price)
	opener.Resources.Credit(world.ResourceData, c.Terms.Price)
	c.State = world.ContractSettled
	return action.WorldEvent{
		Kind:                    action.EventEconomicContractSettled,
		EconomicContractSettled: &action.EconomicContractSettledPayload{ContractID: p.ContractID},
	}, nil
}

func reduceFormAlliance(s *world.State, t action.WorldTime, act action.Action) (action.WorldEvent, error) {
	p := act.FormAlliance
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing form_alliance payload")
	}
	if _, exists := s.Alliances[p.AllianceID]; exists {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "alliance %q already exists", p.AllianceID)
	}
	for _, id := range p.MemberAgentIDs {
		if _, ok := s.Agents[id]; !ok {
			return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", id)
		}
	}
	s.Alliances[p.AllianceID] = &world.Alliance{
		ID: p.AllianceID, MemberAgentIDs: p.MemberAgentIDs, FormedAt: int64(t), State: world.AllianceActive,
	}
	return action.WorldEvent{
		Kind:           action.EventAllianceFormed,
		AllianceFormed: &action.AllianceFormedPayload{AllianceID: p.AllianceID},
	}, nil
}

func reduceDeclareWar(s *world.State, t action.WorldTime, act action.Action) (action.WorldEvent, error) {
	p := act.DeclareWar
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing declare_war payload")
	}
	if _, exists := s.Wars[p.WarID]; exists {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "war %q already exists", p.WarID)
	}
	if _, ok := s.Agents[p.BelligerentA]; !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.BelligerentA)
	}
	if _, ok := s.Agents[p.BelligerentB]; !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.BelligerentB)
	}
	s.Wars[p.WarID] = &world.War{
		ID: p.WarID, BelligerentA: p.BelligerentA, BelligerentB: p.BelligerentB,
		DeclaredAt: int64(t), State: world.WarDeclaredState,
	}
	return action.WorldEvent{
		Kind:        action.EventWarDeclared,
		WarDeclared: &action.WarDeclaredPayload{WarID: p.WarID},
	}, nil
}

func reduceConcludeWar(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.ConcludeWar
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing conclude_war payload")
	}
	w, ok := s.Wars[p.WarID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "war %q not found", p.WarID)
	}
	if w.State != world.WarDeclaredState {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "war %q already concluded", p.WarID)
	}
	w.State = world.WarConcludedState
	w.Outcome = p.Outcome
	return action.WorldEvent{
		Kind:         action.EventWarConcluded,
		WarConcluded: &action.WarConcludedPayload{WarID: p.WarID, Outcome: p.Outcome},
	}, nil
}

func reduceOpenProposal(s *world.State, t action.WorldTime, act action.Action) (action.WorldEvent, error) {
	p := act.OpenProposal
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing open_proposal payload")
	}
	if _, exists := s.Proposals[p.ProposalID]; exists {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "proposal %q already exists", p.ProposalID)
	}
	if _, ok := s.Agents[p.ProposerAgentID]; !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.ProposerAgentID)
	}
	s.Proposals[p.ProposalID] = &world.GovernanceProposal{
		ID: p.ProposalID, ProposerAgentID: p.ProposerAgentID, Kind: p.ProposalKind, Payload: p.Payload,
		Votes: map[world.AgentID]bool{}, State: world.ProposalOpen, OpenedAt: int64(t),
	}
	return action.WorldEvent{
		Kind:                     action.EventGovernanceProposalOpened,
		GovernanceProposalOpened: &action.GovernanceProposalOpenedPayload{ProposalID: p.ProposalID},
	}, nil
}

func reduceCastVote(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.CastVote
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing cast_vote payload")
	}
	prop, ok := s.Proposals[p.ProposalID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "proposal %q not found", p.ProposalID)
	}
	if prop.State != world.ProposalOpen {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "proposal %q is not open", p.ProposalID)
	}
	if _, ok := s.Agents[p.VoterID]; !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.VoterID)
	}
	prop.Votes[p.VoterID] = p.Approve
	return action.WorldEvent{
		Kind:     action.EventVoteCast,
		VoteCast: &action.VoteCastPayload{ProposalID: p.ProposalID, VoterID: p.VoterID, Approve: p.Approve},
	}, nil
}

func reduceFinalizeProposal(s *world.State, t action.WorldTime, act action.Action) (action.WorldEvent, error) {
	p := act.FinalizeProposal
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing finalize_proposal payload")
	}
	prop, ok := s.Proposals[p.ProposalID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "proposal %q not found", p.ProposalID)
	}
	if prop.State != world.ProposalOpen {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "proposal %q is not open", p.ProposalID)
	}
	approve, total := 0, 0
	for _, v := range prop.Votes {
		total++
		if v {
			approve++
		}
	}
	accepted := total > 0 && approve*2 > total
	prop.State = world.ProposalFinalized
	finalizedAt := int64(t)
	prop.FinalizedAt = &finalizedAt
	return action.WorldEvent{
		Kind:                action.EventGovernanceFinalized,
		GovernanceFinalized: &action.GovernanceFinalizedPayload{ProposalID: p.ProposalID, Accepted: accepted},
	}, nil
}

func reduceSpawnCrisis(s *world.State, t action.WorldTime, act action.Action) (action.WorldEvent, error) {
	p := act.SpawnCrisis
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing spawn_crisis payload")
	}
	if _, exists := s.Crises[p.CrisisID]; exists {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "crisis %q already exists", p.CrisisID)
	}
	if _, ok := s.Locations[p.LocationID]; !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeLocationNotFound, "location %q not found", p.LocationID)
	}
	s.Crises[p.CrisisID] = &world.Crisis{
		ID: p.CrisisID, Kind: p.CrisisKind, LocationID: p.LocationID, Severity: p.Severity,
		SpawnedAt: int64(t), TimeoutAt: p.TimeoutAt, State: world.CrisisActive,
	}
	return action.WorldEvent{
		Kind:          action.EventCrisisSpawned,
		CrisisSpawned: &action.CrisisSpawnedPayload{CrisisID: p.CrisisID},
	}, nil
}

func reduceResolveCrisis(s *world.State, t action.WorldTime, act action.Action) (action.WorldEvent, error) {
	p := act.ResolveCrisis
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing resolve_crisis payload")
	}
	c, ok := s.Crises[p.CrisisID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "crisis %q not found", p.CrisisID)
	}
	if c.State != world.CrisisActive {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "crisis %q is not active", p.CrisisID)
	}
	resolvedAt := int64(t)
	c.ResolvedAt = &resolvedAt
	c.State = world.CrisisResolved
	return action.WorldEvent{
		Kind:           action.EventCrisisResolved,
		CrisisResolved: &action.CrisisResolvedPayload{CrisisID: p.CrisisID},
	}, nil
}

func reduceDeployArtifact(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.DeployArtifact
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing deploy_artifact payload")
	}
	if !codec.VerifyHash(p.Bytes, string(p.Hash)) {
		return action.WorldEvent{}, errs.Newf(errs.CodeArtifactHashMismatch, "bytes do not hash to %q", p.Hash)
	}
	if existing, ok := s.Artifacts[p.Hash]; ok {
		if string(existing.Bytes) != string(p.Bytes) {
			return action.WorldEvent{}, errs.Newf(errs.CodeArtifactExists, "artifact %q already registered with different bytes", p.Hash)
		}
		// Idempotent: identical bytes re-registered, no-op success.
		return action.WorldEvent{
			Kind:                   action.EventModuleArtifactDeployed,
			ModuleArtifactDeployed: &action.ModuleArtifactDeployedPayload{Hash: p.Hash, OwnerID: existing.OwnerID},
		}, nil
	}
	s.Artifacts[p.Hash] = &world.ModuleArtifact{Hash: p.Hash, Bytes: p.Bytes, OwnerID: p.OwnerID}
	return action.WorldEvent{
		Kind:                   action.EventModuleArtifactDeployed,
		ModuleArtifactDeployed: &action.ModuleArtifactDeployedPayload{Hash: p.Hash, OwnerID: p.OwnerID},
	}, nil
}

func reduceListArtifact(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.ListArtifact
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing list_artifact payload")
	}
	a, ok := s.Artifacts[p.Hash]
	if !ok || a.Destroyed {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "artifact %q not found", p.Hash)
	}
	a.Listed = true
	return action.WorldEvent{
		Kind:                 action.EventModuleArtifactListed,
		ModuleArtifactListed: &action.ModuleArtifactListedPayload{Hash: p.Hash},
	}, nil
}

func reduceDelistArtifact(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.DelistArtifact
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing delist_artifact payload")
	}
	a, ok := s.Artifacts[p.Hash]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "artifact %q not found", p.Hash)
	}
	a.Listed = false
	return action.WorldEvent{
		Kind:                   action.EventModuleArtifactDelisted,
		ModuleArtifactDelisted: &action.ModuleArtifactDelistedPayload{Hash: p.Hash},
	}, nil
}

func reduceDestroyArtifact(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.DestroyArtifact
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing destroy_artifact payload")
	}
	a, ok := s.Artifacts[p.Hash]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "artifact %q not found", p.Hash)
	}
	a.Destroyed = true
	a.Listed = false
	return action.WorldEvent{
		Kind:                    action.EventModuleArtifactDestroyed,
		ModuleArtifactDestroyed: &action.ModuleArtifactDestroyedPayload{Hash: p.Hash},
	}, nil
}

func reduceBidOnArtifact(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.BidOnArtifact
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing bid_on_artifact payload")
	}
	a, ok := s.Artifacts[p.Hash]
	if !ok || a.Destroyed {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "artifact %q not found", p.Hash)
	}
	if !a.Listed {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidState, "artifact %q is not listed", p.Hash)
	}
	if p.Price <= 0 {
		return action.WorldEvent{}, errs.Newf(errs.CodeInvalidAmount, "price %d must be positive", p.Price)
	}
	bidder, ok := s.Agents[p.BidderID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.BidderID)
	}
	have := bidder.Resources.Get(world.ResourceData)
	if have < p.Price {
		return action.WorldEvent{}, errs.InsufficientResource(string(p.BidderID), string(world.ResourceData), p.Price, have)
	}
	if a.Bids == nil {
		a.Bids = map[world.AgentID]int64{}
	}
	a.Bids[p.BidderID] = p.Price
	return action.WorldEvent{
		Kind:                   action.EventModuleArtifactBidPlaced,
		ModuleArtifactBidPlaced: &action.ModuleArtifactBidPlacedPayload{Hash: p.Hash, BidderID: p.BidderID, Price: p.Price},
	}, nil
}

func reduceCancelArtifactBid(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.CancelArtifactBid
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing cancel_artifact_bid payload")
	}
	a, ok := s.Artifacts[p.Hash]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "artifact %q not found", p.Hash)
	}
	if _, ok := a.Bids[p.BidderID]; !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "bid from %q not found on artifact %q", p.BidderID, p.Hash)
	}
	delete(a.Bids, p.BidderID)
	return action.WorldEvent{
		Kind:                       action.EventModuleArtifactBidCancelled,
		ModuleArtifactBidCancelled: &action.ModuleArtifactBidCancelledPayload{Hash: p.Hash, BidderID: p.BidderID},
	}, nil
}

func reduceAcceptArtifactBid(s *world.State, act action.Action) (action.WorldEvent, error) {
	p := act.AcceptArtifactBid
	if p == nil {
		return action.WorldEvent{}, errs.New(errs.CodeInvalidState, "missing accept_artifact_bid payload")
	}
	a, ok := s.Artifacts[p.Hash]
	if !ok || a.Destroyed {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "artifact %q not found", p.Hash)
	}
	price, ok := a.Bids[p.BidderID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "bid from %q not found on artifact %q", p.BidderID, p.Hash)
	}
	seller, ok := s.Agents[a.OwnerID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", a.OwnerID)
	}
	buyer, ok := s.Agents[p.BidderID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeAgentNotFound, "agent %q not found", p.BidderID)
	}
	have := buyer.Resources.Get(world.ResourceData)
	if have < price {
		return action.WorldEvent{}, errs.InsufficientResource(string(p.BidderID), string(world.ResourceData), price, have)
	}
	buyer.Resources.Debit(world.ResourceData, price)
	seller.Resources.Credit(world.ResourceData, price)
	sellerID := a.OwnerID
	a.OwnerID = p.BidderID
	a.Listed = false
	a.Bids = nil
	return action.WorldEvent{
		Kind: action.EventModuleArtifactSold,
		ModuleArtifactSold: &action.ModuleArtifactSoldPayload{
			Hash: p.Hash, SellerID: sellerID, BuyerID: p.BidderID, Price: price,
		},
	}, nil
}

func sortedMaterialKinds(m world.MaterialLedger) []world.MaterialKind {
	out := make([]world.MaterialKind, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
