package runtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/runtime"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

// fixedSandbox always returns the same CallOutput, letting tests control the
// fee inputs (output bytes, effect/emit counts) independent of state echo.
type fixedSandbox struct {
	out runtime.CallOutput
}

func (s fixedSandbox) Call(_ context.Context, _ runtime.CallInput, _ world.ModuleLimits) (runtime.CallOutput, *runtime.CallFailure) {
	return s.out, nil
}

func newRegistryWithModule(t *testing.T, owner world.AgentID, limits world.ModuleLimits, sandbox runtime.Sandbox) (*runtime.Registry, *world.State) {
	t.Helper()
	s := world.New()
	s.Agents[owner] = world.NewAgent(owner, "loc-a", world.GeoPos{})

	hash := world.ArtifactHash("hash-module-1")
	require.NoError(t, runtime.RegisterModuleArtifact(s, hash, []byte("module-bytes"), owner))

	reg := runtime.NewRegistry(s, sandbox)
	manifest := world.Manifest{
		ModuleID:     "mod-1",
		Version:      1,
		ArtifactHash: hash,
		Limits:       limits,
	}
	require.NoError(t, reg.InstallFromArtifact(manifest, owner))
	require.NoError(t, reg.Activate("mod-1", 1, owner))
	return reg, s
}

// A module call that succeeds and can afford its metered fees emits only
// ModuleRuntimeCharged (plus any state/emit events) — never a failure event —
// and debits the owner for compute and electricity.
func TestExecuteModuleCallSuccessChargesOwner(t *testing.T) {
	sandbox := fixedSandbox{out: runtime.CallOutput{
		NewState:    []byte("next"),
		OutputBytes: 4,
	}}
	reg, s := newRegistryWithModule(t, "owner-1", world.DefaultModuleLimits(), sandbox)
	s.Agents["owner-1"].Resources.Credit(world.ResourceData, 1000)
	s.Agents["owner-1"].Resources.Credit(world.ResourceElectricity, 1000)

	events := reg.ExecuteModuleCall(context.Background(), runtime.Request{
		ModuleID:   "mod-1",
		InputBytes: []byte("abcd"),
		Stage:      runtime.StagePostEvent,
	})

	require.Len(t, events, 2)
	require.Equal(t, action.EventModuleRuntimeCharged, events[0].Kind)
	require.NotNil(t, events[0].ModuleRuntimeCharged)
	require.Greater(t, events[0].ModuleRuntimeCharged.ComputeFeeData, int64(0))
	require.Equal(t, action.EventModuleStateUpdated, events[1].Kind)

	require.Less(t, s.Agents["owner-1"].Resources.Get(world.ResourceData), int64(1000))
	require.Less(t, s.Agents["owner-1"].Resources.Get(world.ResourceElectricity), int64(1000))
	require.Equal(t, []byte("next"), s.Modules[world.ModuleKey("mod-1", 1)].StateBytes)
}

// P7: when the owner cannot afford the metered fees, the call is rejected
// all-or-nothing — only ModuleCallFailed comes back, and neither the owner's
// balance nor the module's state bytes are touched.
func TestExecuteModuleCallInsufficientBalanceIsAllOrNothing(t *testing.T) {
	sandbox := fixedSandbox{out: runtime.CallOutput{
		NewState:    []byte("next"),
		OutputBytes: 4,
	}}
	reg, s := newRegistryWithModule(t, "owner-1", world.DefaultModuleLimits(), sandbox)
	// Deliberately leave the owner's Data/Electricity balances at zero.

	key := world.ModuleKey("mod-1", 1)
	priorState := s.Modules[key].StateBytes

	events := reg.ExecuteModuleCall(context.Background(), runtime.Request{
		ModuleID:   "mod-1",
		InputBytes: []byte("abcd"),
		Stage:      runtime.StagePostEvent,
	})

	require.Len(t, events, 1)
	require.Equal(t, action.EventModuleCallFailed, events[0].Kind)
	require.NotNil(t, events[0].ModuleCallFailed)
	require.Equal(t, world.ModuleID("mod-1"), events[0].ModuleCallFailed.ModuleID)

	require.Equal(t, priorState, s.Modules[key].StateBytes)
	require.Equal(t, int64(0), s.Agents["owner-1"].Resources.Get(world.ResourceData))
	require.Equal(t, int64(0), s.Agents["owner-1"].Resources.Get(world.ResourceElectricity))
}

// DispatchEvent only invokes modules whose manifest subscribes to the given
// stage and event kind, in module_id order, and is a no-op when nothing
// matches.
func TestDispatchEventMatchesSubscriptions(t *testing.T) {
	sandbox := runtime.NullSandbox{}
	s := world.New()
	s.Agents["owner-1"] = world.NewAgent("owner-1", "loc-a", world.GeoPos{})
	s.Agents["owner-1"].Resources.Credit(world.ResourceData, 1000)
	s.Agents["owner-1"].Resources.Credit(world.ResourceElectricity, 1000)

	hash := world.ArtifactHash("hash-module-1")
	require.NoError(t, runtime.RegisterModuleArtifact(s, hash, []byte("module-bytes"), "owner-1"))
	reg := runtime.NewRegistry(s, sandbox)

	subscribed := world.Manifest{
		ModuleID: "mod-sub", Version: 1, ArtifactHash: hash,
		Subscriptions: []world.ManifestSubscription{{Stage: runtime.StagePostEvent, EventKinds: []string{string(action.EventAgentMoved)}}},
		Limits:        world.DefaultModuleLimits(),
	}
	require.NoError(t, reg.InstallFromArtifact(subscribed, "owner-1"))
	require.NoError(t, reg.Activate("mod-sub", 1, "owner-1"))

	unsubscribed := world.Manifest{
		ModuleID: "mod-unsub", Version: 1, ArtifactHash: hash,
		Subscriptions: []world.ManifestSubscription{{Stage: runtime.StagePostEvent, EventKinds: []string{string(action.EventAgentRegistered)}}},
		Limits:        world.DefaultModuleLimits(),
	}
	require.NoError(t, reg.InstallFromArtifact(unsubscribed, "owner-1"))
	require.NoError(t, reg.Activate("mod-unsub", 1, "owner-1"))

	ev := action.WorldEvent{Kind: action.EventAgentMoved, AgentMoved: &action.AgentMovedPayload{AgentID: "agent-1"}}
	produced := reg.DispatchEvent(context.Background(), ev, runtime.StagePostEvent)

	require.Len(t, produced, 1)
	require.Equal(t, action.EventModuleRuntimeCharged, produced[0].Kind)
	require.Equal(t, world.ModuleID("mod-sub"), produced[0].ModuleRuntimeCharged.ModuleID)
}

// The shadow -> approved -> applied manifest-proposal lifecycle installs a
// new module version only once approved, never before.
func TestManifestProposalLifecycle(t *testing.T) {
	s := world.New()
	s.Agents["owner-1"] = world.NewAgent("owner-1", "loc-a", world.GeoPos{})
	hash := world.ArtifactHash("hash-module-1")
	require.NoError(t, runtime.RegisterModuleArtifact(s, hash, []byte("module-bytes"), "owner-1"))
	reg := runtime.NewRegistry(s, runtime.NullSandbox{})

	manifest := world.Manifest{ModuleID: "mod-1", Version: 1, ArtifactHash: hash, Limits: world.DefaultModuleLimits()}
	require.NoError(t, reg.InstallFromArtifact(manifest, "owner-1"))

	newManifest := world.Manifest{ModuleID: "mod-1", ArtifactHash: hash, Entrypoint: "v2", Limits: world.DefaultModuleLimits()}
	id, err := reg.ProposeManifestUpdate("mod-1", newManifest, "owner-1")
	require.NoError(t, err)

	_, err = reg.ApplyManifestUpdate(id)
	require.Error(t, err, "applying before approval must fail")

	require.NoError(t, reg.ApproveManifestUpdate(id, "approver-1"))
	ev, err := reg.ApplyManifestUpdate(id)
	require.NoError(t, err)
	require.Equal(t, action.EventManifestUpdated, ev.Kind)
	require.Equal(t, uint64(2), ev.ManifestUpdated.Version)

	installed, ok := s.Modules[world.ModuleKey("mod-1", 2)]
	require.True(t, ok)
	require.Equal(t, "v2", installed.Manifest.Entrypoint)

	_, err = reg.ApplyManifestUpdate(id)
	require.Error(t, err, "re-applying an already-applied proposal must fail")
}

// Rejecting a proposal leaves it permanently unapplicable.
func TestManifestProposalRejection(t *testing.T) {
	s := world.New()
	s.Agents["owner-1"] = world.NewAgent("owner-1", "loc-a", world.GeoPos{})
	hash := world.ArtifactHash("hash-module-1")
	require.NoError(t, runtime.RegisterModuleArtifact(s, hash, []byte("module-bytes"), "owner-1"))
	reg := runtime.NewRegistry(s, runtime.NullSandbox{})

	newManifest := world.Manifest{ModuleID: "mod-1", ArtifactHash: hash, Limits: world.DefaultModuleLimits()}
	id, err := reg.ProposeManifestUpdate("mod-1", newManifest, "owner-1")
	require.NoError(t, err)

	require.NoError(t, reg.RejectManifestUpdate(id))
	require.Error(t, reg.ApproveManifestUpdate(id, "approver-1"), "a rejected proposal cannot be approved")
	_, err = reg.ApplyManifestUpdate(id)
	require.Error(t, err, "a rejected proposal cannot be applied")
}
