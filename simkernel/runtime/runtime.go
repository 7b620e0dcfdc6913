// Package runtime manages module lifecycle and dispatches sandboxed calls
// (§4.2), metering each call with the dual compute/electricity fee and
// enforcing all-or-nothing event emission.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/codec"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
	"github.com/eng-cc/agent-world-sub009/simkernel/log"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"
)

// CallContext is the ctx sub-object of ModuleCallInput (§4.2 sandbox contract).
type CallContext struct {
	ModuleID world.ModuleID   `cbor:"module_id"`
	Time     action.WorldTime `cbor:"time"`
	Stage    string           `cbor:"stage,omitempty"`
	Origin   string           `cbor:"origin,omitempty"`
}

// CallInput is the CBOR-encoded payload handed to the sandbox.
type CallInput struct {
	Ctx    CallContext      `cbor:"ctx"`
	Action *action.Action   `cbor:"action,omitempty"`
	Event  *action.WorldEvent `cbor:"event,omitempty"`
	State  []byte           `cbor:"state,omitempty"`
}

// Effect is an opaque side-effect a module requests the kernel queue.
type Effect struct {
	Kind string `cbor:"kind"`
	Data []byte `cbor:"data"`
}

// Emit is an opaque event a module wants fanned out as ModuleEmitted.
type Emit struct {
	Kind string `cbor:"kind"`
	Data []byte `cbor:"data"`
}

// CallOutput is the CBOR-encoded sandbox response (§4.2).
type CallOutput struct {
	NewState      []byte   `cbor:"new_state,omitempty"`
	Effects       []Effect `cbor:"effects,omitempty"`
	Emits         []Emit   `cbor:"emits,omitempty"`
	TickLifecycle string   `cbor:"tick_lifecycle,omitempty"`
	OutputBytes   int      `cbor:"output_bytes"`
}

// FailureCode enumerates sandbox failure reasons (§4.2).
type FailureCode string

const (
	FailureTimeout           FailureCode = "timeout"
	FailureOutOfGas          FailureCode = "out_of_gas"
	FailureInvalidOutput     FailureCode = "invalid_output"
	FailureSandboxUnavailable FailureCode = "sandbox_unavailable"
)

// CallFailure is returned by the sandbox when a call cannot be completed.
type CallFailure struct {
	ModuleID world.ModuleID
	TraceID  string
	Code     FailureCode
	Detail   string
}

func (f *CallFailure) Error() string {
	return fmt.Sprintf("module %s call %s failed: %s: %s", f.ModuleID, f.TraceID, f.Code, f.Detail)
}

// Sandbox is the external implementor consumed by execute_module_call. The
// sandbox itself is out of scope (no WASM bytecode interpreter is wired
// here) — only this narrow request/response contract is.
type Sandbox interface {
	Call(ctx context.Context, req CallInput, limits world.ModuleLimits) (CallOutput, *CallFailure)
}

// Request bundles everything execute_module_call needs beyond the module id.
type Request struct {
	ModuleID   world.ModuleID
	TraceID    string
	InputBytes []byte
	Stage      string
	Origin     string
	Time       action.WorldTime
	Action     *action.Action
	Event      *action.WorldEvent
}

// Dispatch stages a ManifestSubscription may declare (§4.2, §5). Stage is
// fixed per DispatchEvent call, so subscriber ordering within a stage
// reduces to module_id ascending.
const (
	StagePreAction  = "pre_action"
	StagePostAction = "post_action"
	StagePostEvent  = "post_event"
)

// Registry owns installed modules, their manifests, and sandbox dispatch.
// Ownership + ("not in use") gating for install/upgrade/deactivate/destroy is
// enforced here (§4.2).
type Registry struct {
	mu           sync.Mutex
	state        *world.State
	sandbox      Sandbox
	limiterStore store.Store
	limiters     map[world.ModuleID]*limiter.TokenBucket
	breakers     map[world.ModuleID]*gobreaker.CircuitBreaker
	proposals    map[string]*ManifestProposal
	log          *log.Logger
}

// NewRegistry constructs a module registry bound to world state and a
// sandbox implementor.
func NewRegistry(state *world.State, sandbox Sandbox) *Registry {
	return &Registry{
		state:        state,
		sandbox:      sandbox,
		limiterStore: store.NewMemoryStore(time.Minute),
		limiters:     map[world.ModuleID]*limiter.TokenBucket{},
		breakers:     map[world.ModuleID]*gobreaker.CircuitBreaker{},
		proposals:    map[string]*ManifestProposal{},
		log:          log.Default("runtime"),
	}
}

// RegisterModuleArtifact stores bytes under hash, verifying BLAKE3(bytes) ==
// hash first; idempotent when bytes already match (§4.2).
func RegisterModuleArtifact(s *world.State, hash world.ArtifactHash, bytes []byte, owner world.AgentID) error {
	if !codec.VerifyHash(bytes, string(hash)) {
		return errs.Newf(errs.CodeArtifactHashMismatch, "bytes do not hash to %q", hash)
	}
	if existing, ok := s.Artifacts[hash]; ok {
		if string(existing.Bytes) != string(bytes) {
			return errs.Newf(errs.CodeArtifactExists, "artifact %q already registered with different bytes", hash)
		}
		return nil
	}
	s.Artifacts[hash] = &world.ModuleArtifact{Hash: hash, Bytes: bytes, OwnerID: owner}
	return nil
}

// InstallFromArtifact installs a module from a registered artifact, gated by
// artifact ownership.
func (r *Registry) InstallFromArtifact(manifest world.Manifest, owner world.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	art, ok := r.state.Artifacts[manifest.ArtifactHash]
	if !ok {
		return errs.Newf(errs.CodeNotFound, "artifact %q not found", manifest.ArtifactHash)
	}
	if art.OwnerID != owner {
		return errs.Newf(errs.CodeModuleChangeInvalid, "agent %q does not own artifact %q", owner, manifest.ArtifactHash)
	}
	key := world.ModuleKey(manifest.ModuleID, manifest.Version)
	if _, exists := r.state.Modules[key]; exists {
		return errs.Newf(errs.CodeModuleChangeInvalid, "module %q version %d already installed", manifest.ModuleID, manifest.Version)
	}
	r.state.Modules[key] = &world.InstalledModule{
		ModuleID: manifest.ModuleID, Version: manifest.Version, OwnerID: owner,
		ArtifactHash: manifest.ArtifactHash, Lifecycle: world.ModuleRegistered, Manifest: manifest,
	}
	return nil
}

// Activate transitions a registered module to activated, gated by ownership.
func (r *Registry) Activate(id world.ModuleID, version uint64, actor world.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.lookup(id, version)
	if err != nil {
		return err
	}
	if m.OwnerID != actor {
		return errs.Newf(errs.CodeModuleChangeInvalid, "agent %q does not own module %q", actor, id)
	}
	if m.Lifecycle != world.ModuleRegistered && m.Lifecycle != world.ModuleDeactivated {
		return errs.Newf(errs.CodeModuleChangeInvalid, "module %q cannot activate from state %q", id, m.Lifecycle)
	}
	m.Lifecycle = world.ModuleActivated
	m.Active = true
	burst := int64(m.Manifest.Limits.MaxCallRate)
	if burst < 1 {
		burst = 1
	}
	tb, err2 := limiter.NewTokenBucket(limiter.Config{
		Rate:     int64(m.Manifest.Limits.MaxCallRate),
		Duration: time.Second,
		Burst:    burst,
	}, r.limiterStore)
	if err2 != nil {
		return errs.Wrap(errs.CodeModuleChangeInvalid, "failed to build module rate limiter", err2)
	}
	r.limiters[id] = tb
	r.breakers[id] = gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: string(id)})
	return nil
}

// Upgrade installs a new version's manifest under the same module id and
// points OwnerID-gated callers at it, gated by ownership and "not currently
// used by any active module" — here interpreted as: the module being
// upgraded from must not itself be Active (callers deactivate first).
func (r *Registry) Upgrade(id world.ModuleID, fromVersion, toVersion uint64, newManifest world.Manifest, actor world.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, err := r.lookup(id, fromVersion)
	if err != nil {
		return err
	}
	if old.OwnerID != actor {
		return errs.Newf(errs.CodeModuleChangeInvalid, "agent %q does not own module %q", actor, id)
	}
	if old.Active {
		return errs.Newf(errs.CodeModuleChangeInvalid, "module %q version %d is in use", id, fromVersion)
	}
	art, ok := r.state.Artifacts[newManifest.ArtifactHash]
	if !ok || art.OwnerID != actor {
		return errs.Newf(errs.CodeModuleChangeInvalid, "agent %q does not own artifact %q", actor, newManifest.ArtifactHash)
	}
	key := world.ModuleKey(id, toVersion)
	r.state.Modules[key] = &world.InstalledModule{
		ModuleID: id, Version: toVersion, OwnerID: actor,
		ArtifactHash: newManifest.ArtifactHash, Lifecycle: world.ModuleRegistered, Manifest: newManifest,
	}
	return nil
}

// Deactivate transitions an activated module back to deactivated.
func (r *Registry) Deactivate(id world.ModuleID, version uint64, actor world.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.lookup(id, version)
	if err != nil {
		return err
	}
	if m.OwnerID != actor {
		return errs.Newf(errs.CodeModuleChangeInvalid, "agent %q does not own module %q", actor, id)
	}
	m.Lifecycle = world.ModuleDeactivated
	m.Active = false
	return nil
}

// DestroyArtifact retires an artifact, gated by it not backing any active
// module.
func (r *Registry) DestroyArtifact(hash world.ArtifactHash, actor world.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	art, ok := r.state.Artifacts[hash]
	if !ok {
		return errs.Newf(errs.CodeNotFound, "artifact %q not found", hash)
	}
	if art.OwnerID != actor {
		return errs.Newf(errs.CodeModuleChangeInvalid, "agent %q does not own artifact %q", actor, hash)
	}
	for _, m := range r.state.Modules {
		if m.ArtifactHash == hash && m.Active {
			return errs.Newf(errs.CodeModuleChangeInvalid, "artifact %q is in use by an active module", hash)
		}
	}
	art.Destroyed = true
	return nil
}

func (r *Registry) lookup(id world.ModuleID, version uint64) (*world.InstalledModule, error) {
	key := world.ModuleKey(id, version)
	m, ok := r.state.Modules[key]
	if !ok {
		return nil, errs.Newf(errs.CodeNotFound, "module %q version %d not found", id, version)
	}
	return m, nil
}

// ChargeResult records the two fees charged for a successful call (§4.2 and
// §9.1's formula resolution).
type ChargeResult struct {
	ComputeFeeData int64
	ElectricityFee int64
}

// computeFees implements the §9.1 Open Question resolution: compute fee (paid
// in Data) = ceil((input_bytes+output_bytes)/100); electricity fee =
// (effect_count+emit_count)*2 + ceil(output_bytes/64).
func computeFees(inputBytes, outputBytes, effectCount, emitCount int) ChargeResult {
	total := inputBytes + outputBytes
	compute := int64(total+99) / 100
	elec := int64((effectCount+emitCount)*2) + int64(outputBytes+63)/64
	return ChargeResult{ComputeFeeData: compute, ElectricityFee: elec}
}

// ExecuteModuleCall runs one sandboxed call end to end: lookup, rate limit,
// circuit-break, invoke, meter, and apply atomically. Returns the events to
// append — all-or-nothing: on failure, only a ModuleCallFailed event is
// returned and state is left untouched.
func (r *Registry) ExecuteModuleCall(ctx context.Context, req Request) []action.WorldEvent {
	r.mu.Lock()
	m, ok := findActive(r.state, req.ModuleID)
	r.mu.Unlock()
	if !ok {
		return []action.WorldEvent{failedEvent(req.ModuleID, "module not active")}
	}

	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}

	if lim, ok := r.limiters[req.ModuleID]; ok && !lim.Allow(string(req.ModuleID)) {
		return []action.WorldEvent{failedEvent(req.ModuleID, "call rate exceeded")}
	}

	call := func() (interface{}, error) {
		in := CallInput{
			Ctx:    CallContext{ModuleID: req.ModuleID, Time: req.Time, Stage: req.Stage, Origin: req.Origin},
			Action: req.Action,
			Event:  req.Event,
			State:  m.StateBytes,
		}
		out, failure := r.sandbox.Call(ctx, in, m.Manifest.Limits)
		if failure != nil {
			return nil, failure
		}
		return out, nil
	}

	var result interface{}
	var err error
	if br, ok := r.breakers[req.ModuleID]; ok {
		result, err = br.Execute(call)
	} else {
		result, err = call()
	}
	if err != nil {
		reason := err.Error()
		if cf, ok := err.(*CallFailure); ok {
			reason = fmt.Sprintf("%s: %s", cf.Code, cf.Detail)
		}
		return []action.WorldEvent{failedEvent(req.ModuleID, reason)}
	}
	out := result.(CallOutput)

	owner, ok := r.state.Agents[m.OwnerID]
	if !ok {
		return []action.WorldEvent{failedEvent(req.ModuleID, "owner agent not found")}
	}

	fees := computeFees(len(req.InputBytes), out.OutputBytes, len(out.Effects), len(out.Emits))
	haveData := owner.Resources.Get(world.ResourceData)
	haveElec := owner.Resources.Get(world.ResourceElectricity)
	if haveData < fees.ComputeFeeData || haveElec < fees.ElectricityFee {
		return []action.WorldEvent{failedEvent(req.ModuleID, "insufficient balance for module fees")}
	}

	r.mu.Lock()
	owner.Resources.Debit(world.ResourceData, fees.ComputeFeeData)
	owner.Resources.Debit(world.ResourceElectricity, fees.ElectricityFee)
	if out.NewState != nil {
		m.StateBytes = out.NewState
	}
	r.mu.Unlock()

	events := []action.WorldEvent{
		{
			Kind: action.EventModuleRuntimeCharged,
			ModuleRuntimeCharged: &action.ModuleRuntimeChargedPayload{
				ModuleID: req.ModuleID, ComputeFeeData: fees.ComputeFeeData, ElectricityFee: fees.ElectricityFee,
			},
		},
	}
	if out.NewState != nil {
		events = append(events, action.WorldEvent{
			Kind:               action.EventModuleStateUpdated,
			ModuleStateUpdated: &action.ModuleStateUpdatedPayload{ModuleID: req.ModuleID, ByteLength: len(out.NewState)},
		})
	}
	for _, e := range out.Emits {
		events = append(events, action.WorldEvent{
			Kind:         action.EventModuleEmitted,
			ModuleEmitted: &action.ModuleEmittedPayload{ModuleID: req.ModuleID, EmitKind: e.Kind, EmitBytes: e.Data},
		})
	}
	return events
}

// DispatchEvent fans ev out to every active module subscribed to stage for
// ev.Kind, invoking ExecuteModuleCall for each in (stage, module_id) order
// and returning the combined produced events — the mechanism behind the
// kernel's PostEvent seam (§4.2, §5).
func (r *Registry) DispatchEvent(ctx context.Context, ev action.WorldEvent, stage string) []action.WorldEvent {
	r.mu.Lock()
	mods := subscribedModules(r.state, stage, ev.Kind)
	r.mu.Unlock()

	var out []action.WorldEvent
	for _, m := range mods {
		evBytes, err := codec.Marshal(ev)
		if err != nil {
			out = append(out, failedEvent(m.ModuleID, "marshal event: "+err.Error()))
			continue
		}
		produced := r.ExecuteModuleCall(ctx, Request{
			ModuleID:   m.ModuleID,
			InputBytes: evBytes,
			Stage:      stage,
			Time:       ev.At,
			Event:      &ev,
		})
		out = append(out, produced...)
	}
	return out
}

// subscribedModules returns the active modules subscribed to stage for kind,
// ordered by module_id ascending (stage is already fixed per call).
func subscribedModules(s *world.State, stage string, kind action.EventKind) []*world.InstalledModule {
	var out []*world.InstalledModule
	for _, key := range sortedModuleKeys(s) {
		m := s.Modules[key]
		if !m.Active {
			continue
		}
		if matchesSubscription(m.Manifest.Subscriptions, stage, string(kind)) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out
}

func matchesSubscription(subs []world.ManifestSubscription, stage, kind string) bool {
	for _, sub := range subs {
		if sub.Stage != stage {
			continue
		}
		if len(sub.EventKinds) == 0 {
			return true
		}
		for _, k := range sub.EventKinds {
			if k == kind {
				return true
			}
		}
	}
	return false
}

func failedEvent(id world.ModuleID, reason string) action.WorldEvent {
	return action.WorldEvent{
		Kind:             action.EventModuleCallFailed,
		ModuleCallFailed: &action.ModuleCallFailedPayload{ModuleID: id, Reason: reason},
	}
}

func findActive(s *world.State, id world.ModuleID) (*world.InstalledModule, bool) {
	// A module id may have several installed versions; pick the active one,
	// deterministically preferring the highest version if more than one is
	// (incorrectly) marked active.
	var best *world.InstalledModule
	for _, key := range sortedModuleKeys(s) {
		m := s.Modules[key]
		if m.ModuleID != id || !m.Active {
			continue
		}
		if best == nil || m.Version > best.Version {
			best = m
		}
	}
	return best, best != nil
}

func sortedModuleKeys(s *world.State) []string {
	keys := make([]string, 0, len(s.Modules))
	for k := range s.Modules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ManifestProposalState is the governance lifecycle a propose_manifest_update
// walks through before a new manifest version takes over production routing
// (§4.2): Shadow (routed no-op, visible for review) -> Approved (signed off
// by an approver; any approver id is accepted) -> Applied (installed) |
// Rejected.
type ManifestProposalState string

const (
	ProposalShadow   ManifestProposalState = "shadow"
	ProposalApproved ManifestProposalState = "approved"
	ProposalApplied  ManifestProposalState = "applied"
	ProposalRejected ManifestProposalState = "rejected"
)

// ManifestProposal tracks one in-flight manifest change.
type ManifestProposal struct {
	ID        string
	ModuleID  world.ModuleID
	Manifest  world.Manifest
	Actor     world.AgentID
	State     ManifestProposalState
	Approvals map[world.AgentID]bool
}

// ProposeManifestUpdate opens a shadow-mode proposal to install newManifest
// for id, gated on actor owning the artifact the new manifest points at.
// Returns the new proposal's id.
func (r *Registry) ProposeManifestUpdate(id world.ModuleID, newManifest world.Manifest, actor world.AgentID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	art, ok := r.state.Artifacts[newManifest.ArtifactHash]
	if !ok || art.OwnerID != actor {
		return "", errs.Newf(errs.CodeModuleChangeInvalid, "agent %q does not own artifact %q", actor, newManifest.ArtifactHash)
	}
	p := &ManifestProposal{
		ID:        uuid.NewString(),
		ModuleID:  id,
		Manifest:  newManifest,
		Actor:     actor,
		State:     ProposalShadow,
		Approvals: map[world.AgentID]bool{},
	}
	r.proposals[p.ID] = p
	return p.ID, nil
}

// ApproveManifestUpdate records approver's sign-off and, once any approval is
// recorded, transitions the proposal from Shadow to Approved.
func (r *Registry) ApproveManifestUpdate(proposalID string, approver world.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[proposalID]
	if !ok {
		return errs.Newf(errs.CodeNotFound, "manifest proposal %q not found", proposalID)
	}
	if p.State != ProposalShadow && p.State != ProposalApproved {
		return errs.Newf(errs.CodeModuleChangeInvalid, "proposal %q cannot be approved from state %q", proposalID, p.State)
	}
	p.Approvals[approver] = true
	p.State = ProposalApproved
	return nil
}

// RejectManifestUpdate withdraws a shadow or approved proposal.
func (r *Registry) RejectManifestUpdate(proposalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[proposalID]
	if !ok {
		return errs.Newf(errs.CodeNotFound, "manifest proposal %q not found", proposalID)
	}
	p.State = ProposalRejected
	return nil
}

// ApplyManifestUpdate installs an Approved proposal's manifest as a new
// version of its module id and marks the proposal Applied, returning the
// ManifestUpdated event for the caller to journal.
func (r *Registry) ApplyManifestUpdate(proposalID string) (action.WorldEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[proposalID]
	if !ok {
		return action.WorldEvent{}, errs.Newf(errs.CodeNotFound, "manifest proposal %q not found", proposalID)
	}
	if p.State != ProposalApproved {
		return action.WorldEvent{}, errs.Newf(errs.CodeModuleChangeInvalid, "proposal %q is not approved", proposalID)
	}

	var nextVersion uint64 = 1
	for _, key := range sortedModuleKeys(r.state) {
		m := r.state.Modules[key]
		if m.ModuleID == p.ModuleID && m.Version >= nextVersion {
			nextVersion = m.Version + 1
		}
	}

	key := world.ModuleKey(p.ModuleID, nextVersion)
	r.state.Modules[key] = &world.InstalledModule{
		ModuleID: p.ModuleID, Version: nextVersion, OwnerID: p.Actor,
		ArtifactHash: p.Manifest.ArtifactHash, Lifecycle: world.ModuleRegistered, Manifest: p.Manifest,
	}
	p.State = ProposalApplied

	return action.WorldEvent{
		Kind:            action.EventManifestUpdated,
		ManifestUpdated: &action.ManifestUpdatedPayload{ModuleID: p.ModuleID, Version: nextVersion},
	}, nil
}
