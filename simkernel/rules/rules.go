// Package rules implements the pre/post-action and post-event hook pipeline
// and its verdict-merge policy (§4.3).
package rules

import (
	"context"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

// Verdict is a single hook's disposition toward an action.
type Verdict string

const (
	VerdictAllow  Verdict = "allow"
	VerdictDeny   Verdict = "deny"
	VerdictModify Verdict = "modify"
)

// ResourceDelta is an additive cost a hook wants applied on top of the
// reducer's own charge, summed across all surviving hooks.
type ResourceDelta map[world.ResourceKind]int64

// Decision is one hook's RuleDecision for a given action (§4.3).
type Decision struct {
	ActionID       world.ActionID
	Verdict        Verdict
	OverrideAction *action.Action // only set when Verdict == VerdictModify
	Cost           ResourceDelta
	Notes          []string
}

// Context is the read-only view pre-action hooks may inspect; they must never
// mutate it (§4.3: "must not mutate state").
type Context struct {
	Time       action.WorldTime
	State      *world.State
	AgentIDs   []world.AgentID
	LocationIDs []world.LocationID
}

// Hook is one rule flavour: closure (in-process), built-in (registered by
// id), or WASM (bridged via a sandbox), all behind the same signature so the
// pipeline doesn't care which.
type Hook interface {
	// ID names the hook for (stage, module_id) lexicographic dispatch order
	// (§5).
	ID() string
	Evaluate(ctx context.Context, rc Context, act action.Action) Decision
}

// ClosureHook adapts a plain function into a Hook — the in-process flavour.
type ClosureHook struct {
	Name string
	Fn   func(context.Context, Context, action.Action) Decision
}

func (h ClosureHook) ID() string { return h.Name }
func (h ClosureHook) Evaluate(ctx context.Context, rc Context, act action.Action) Decision {
	return h.Fn(ctx, rc, act)
}

// Merged is the pipeline's combined outcome for one action (§4.3 steps 2-4).
type Merged struct {
	Verdict  Verdict
	Action   action.Action // effective action: overridden if a Modify survived
	Cost     ResourceDelta
	Notes    []string
}

// Merge applies the spec's merge rule: any Deny wins; zero Modify -> Allow;
// exactly one Modify -> that override; two or more Modify -> Deny with
// "conflicting override". Costs are summed only when the result is not Deny.
func Merge(original action.Action, decisions []Decision) Merged {
	var notes []string
	var modifies []Decision
	denied := false

	for _, d := range decisions {
		if len(d.Notes) > 0 {
			notes = append(notes, d.Notes...)
		}
		switch d.Verdict {
		case VerdictDeny:
			denied = true
		case VerdictModify:
			modifies = append(modifies, d)
		}
	}

	if denied {
		return Merged{Verdict: VerdictDeny, Action: original, Notes: notes}
	}

	switch len(modifies) {
	case 0:
		cost := sumCosts(decisions)
		return Merged{Verdict: VerdictAllow, Action: original, Cost: cost, Notes: notes}
	case 1:
		eff := original
		if modifies[0].OverrideAction != nil {
			eff = *modifies[0].OverrideAction
		}
		cost := sumCosts(decisions)
		return Merged{Verdict: VerdictModify, Action: eff, Cost: cost, Notes: notes}
	default:
		notes = append(notes, "conflicting override")
		return Merged{Verdict: VerdictDeny, Action: original, Notes: notes}
	}
}

func sumCosts(decisions []Decision) ResourceDelta {
	out := ResourceDelta{}
	for _, d := range decisions {
		for k, v := range d.Cost {
			out[k] += v
		}
	}
	return out
}

// Pipeline runs an ordered set of hooks for one stage and merges their
// decisions. Hooks already arrive in (stage, module_id) lexicographic order;
// the caller is responsible for sorting registrations (§5).
type Pipeline struct {
	hooks []Hook
}

// NewPipeline constructs an empty pipeline.
func NewPipeline() *Pipeline { return &Pipeline{} }

// Register appends a hook, keeping registrations sorted by ID so dispatch
// order stays deterministic regardless of registration order.
func (p *Pipeline) Register(h Hook) {
	p.hooks = append(p.hooks, h)
	for i := len(p.hooks) - 1; i > 0 && p.hooks[i-1].ID() > p.hooks[i].ID(); i-- {
		p.hooks[i-1], p.hooks[i] = p.hooks[i], p.hooks[i-1]
	}
}

// Hooks returns the registered hooks in dispatch order.
func (p *Pipeline) Hooks() []Hook { return p.hooks }

// Run evaluates every registered hook against act and merges the result.
func (p *Pipeline) Run(ctx context.Context, rc Context, act action.Action) Merged {
	decisions := make([]Decision, 0, len(p.hooks))
	for _, h := range p.hooks {
		decisions = append(decisions, h.Evaluate(ctx, rc, act))
	}
	return Merge(act, decisions)
}

// KernelRuleModuleInput is the minimal surface presented to a WASM-bridged
// hook, deliberately narrower than the full Context to keep the sandbox
// surface small (§4.3).
type KernelRuleModuleInput struct {
	ActionID world.ActionID `cbor:"action_id"`
	Action   action.Action  `cbor:"action"`
	Context  struct {
		Time        action.WorldTime   `cbor:"time"`
		AgentIDs    []world.AgentID    `cbor:"agent_ids"`
		LocationIDs []world.LocationID `cbor:"location_ids"`
	} `cbor:"context"`
}

// BuildKernelRuleModuleInput projects a full Context down to the WASM bridge
// surface for a given action.
func BuildKernelRuleModuleInput(id world.ActionID, act action.Action, rc Context) KernelRuleModuleInput {
	in := KernelRuleModuleInput{ActionID: id, Action: act}
	in.Context.Time = rc.Time
	in.Context.AgentIDs = rc.AgentIDs
	in.Context.LocationIDs = rc.LocationIDs
	return in
}
