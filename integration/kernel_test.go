package integration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/errs"
	"github.com/eng-cc/agent-world-sub009/simkernel/kernel"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

func newLocatedWorld(t *testing.T) *kernel.World {
	t.Helper()
	k := kernel.New()
	k.State().Locations["loc-a"] = world.NewLocation("loc-a", "Alpha", world.GeoPos{})
	k.State().Locations["loc-b"] = world.NewLocation("loc-b", "Beta", world.GeoPos{XCm: 500_000})
	return k
}

func registerAction(id uint64, agentID world.AgentID, loc world.LocationID) action.Action {
	return action.Action{
		ID:   world.ActionID{Seq: id},
		Kind: action.KindRegisterAgent,
		RegisterAgent: &action.RegisterAgentPayload{
			AgentID: agentID, LocationID: loc,
		},
	}
}

// An agent registers then moves, paying electricity for distance covered —
// the baseline happy-path scenario.
func TestKernelRegisterAndMove(t *testing.T) {
	k := newLocatedWorld(t)
	ctx := context.Background()

	k.SubmitAction(registerAction(1, "agent-1", "loc-a"))
	ev, ok := k.Step(ctx)
	require.True(t, ok)
	require.Equal(t, action.EventAgentRegistered, ev.Kind)

	k.State().Agents["agent-1"].Resources.Credit(world.ResourceElectricity, 10_000)

	k.SubmitAction(action.Action{
		ID:   world.ActionID{Seq: 2},
		Kind: action.KindMoveAgent,
		MoveAgent: &action.MoveAgentPayload{
			AgentID: "agent-1", TargetLocation: "loc-b", PerKmRate: 1,
		},
	})
	ev, ok = k.Step(ctx)
	require.True(t, ok)
	require.Equal(t, action.EventAgentMoved, ev.Kind)
	require.Equal(t, world.LocationID("loc-b"), k.State().Agents["agent-1"].LocationID)
	require.Less(t, k.State().Agents["agent-1"].Resources.Get(world.ResourceElectricity), int64(10_000))
}

// Moving without enough electricity is rejected rather than going negative
// (I1), and the rejection is journaled with a stable error code rather than
// silently dropped.
func TestKernelRejectsInsufficientElectricity(t *testing.T) {
	k := newLocatedWorld(t)
	ctx := context.Background()

	k.SubmitAction(registerAction(1, "agent-1", "loc-a"))
	_, _ = k.Step(ctx)

	k.SubmitAction(action.Action{
		ID:   world.ActionID{Seq: 2},
		Kind: action.KindMoveAgent,
		MoveAgent: &action.MoveAgentPayload{
			AgentID: "agent-1", TargetLocation: "loc-b", PerKmRate: 1,
		},
	})
	ev, ok := k.Step(ctx)
	require.True(t, ok)
	require.Equal(t, action.EventActionRejected, ev.Kind)
	require.Equal(t, string(errs.CodeInsufficientResource), ev.ActionRejected.Code)
	require.Equal(t, world.LocationID("loc-a"), k.State().Agents["agent-1"].LocationID)
}

// A deny-verdict pre-action hook suppresses the reducer entirely, and its
// note surfaces in the rejected event's detail.
func TestKernelPreActionDenyHookBlocksReducer(t *testing.T) {
	k := newLocatedWorld(t)
	ctx := context.Background()

	k.State().Agents["agent-1"] = world.NewAgent("agent-1", "loc-a", world.GeoPos{})

	blocked := false
	k.PreAction.Register(ruleClosure("zz-deny-all-moves", func(a action.Action) bool {
		if a.Kind == action.KindMoveAgent {
			blocked = true
			return false
		}
		return true
	}))

	k.SubmitAction(action.Action{
		ID:   world.ActionID{Seq: 1},
		Kind: action.KindMoveAgent,
		MoveAgent: &action.MoveAgentPayload{
			AgentID: "agent-1", TargetLocation: "loc-b", PerKmRate: 1,
		},
	})
	ev, ok := k.Step(ctx)
	require.True(t, ok)
	require.True(t, blocked)
	require.Equal(t, action.EventActionRejected, ev.Kind)
}

// RestoreFrom resets the action log so a block built right after recovery
// only covers post-recovery actions, never re-counting pre-recovery ones.
func TestKernelActionLogResetsOnRestore(t *testing.T) {
	k := newLocatedWorld(t)
	ctx := context.Background()

	k.SubmitAction(registerAction(1, "agent-1", "loc-a"))
	_, _ = k.Step(ctx)
	require.Len(t, k.ActionLog(), 1)

	k.RestoreFrom(k.State(), k.Journal(), nil, k.Time(), 1, 0, 1, 0)
	require.Empty(t, k.ActionLog())
}
