// Package kernel implements the canonical reducer from queued actions to
// journaled events (§4.1): submit_action/step/journal/snapshot, wired through
// the rule decision pipeline.
package kernel

import (
	"context"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/log"
	"github.com/eng-cc/agent-world-sub009/simkernel/rules"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

// PostEventFunc is invoked once per appended event, after post-action hooks,
// so the module runtime can fan out PostEvent subscriptions without the
// kernel importing the runtime package.
type PostEventFunc func(ctx context.Context, ev action.WorldEvent)

// PostDecisionFunc is invoked once per step with the pre-action pipeline's
// merged verdict, before the reducer runs, so callers can meter rule
// outcomes without the kernel importing a metrics package.
type PostDecisionFunc func(verdict rules.Verdict)

// World is the kernel: single-threaded owner of world state, the pending
// action queue, and the append-only event journal (§5).
type World struct {
	state *world.State
	queue *action.Queue

	journal   []action.WorldEvent
	actionLog []action.Action
	time      action.WorldTime

	actionCounter *world.Counter
	eventCounter  *world.Counter

	PreAction  *rules.Pipeline
	PostAction *rules.Pipeline

	PostEvent    PostEventFunc
	PostDecision PostDecisionFunc

	log *log.Logger
}

// New constructs an empty World at time 0.
func New() *World {
	return &World{
		state:         world.New(),
		queue:         action.NewQueue(),
		actionCounter: world.NewCounter(),
		eventCounter:  world.NewCounter(),
		PreAction:     rules.NewPipeline(),
		PostAction:    rules.NewPipeline(),
		log:           log.Default("kernel"),
	}
}

// State returns the live world state. Callers outside the kernel must treat
// it as read-only; step() is the only mutation entry point (§5).
func (w *World) State() *world.State { return w.state }

// Time returns the current world tick.
func (w *World) Time() action.WorldTime { return w.time }

// Journal returns the full appended event sequence.
func (w *World) Journal() []action.WorldEvent { return w.journal }

// ActionLog returns every action that has been popped from the queue and
// applied so far, in application order — the action-side counterpart to
// Journal(), used to compute a block's action_root (§4.5).
func (w *World) ActionLog() []action.Action { return w.actionLog }

// PendingActions returns a FIFO-order snapshot of the unprocessed queue.
func (w *World) PendingActions() []action.Action { return w.queue.Snapshot() }

// Counters exposes the raw (seq, era) pairs for persistence.
func (w *World) Counters() (actionSeq, actionEra, eventSeq, eventEra uint64) {
	aSeq, aEra := w.actionCounter.State()
	eSeq, eEra := w.eventCounter.State()
	return aSeq, aEra, eSeq, eEra
}

// NextActionID allocates the next action id without enqueuing anything; used
// by callers that build an Action before calling SubmitAction.
func (w *World) NextActionID() world.ActionID {
	seq, era := w.actionCounter.Next()
	return world.ActionID{Seq: seq, Era: era}
}

// SubmitAction appends act to the pending queue. Never fails (§4.1).
func (w *World) SubmitAction(act action.Action) world.ActionID {
	w.queue.Push(act)
	return act.ID
}

// Step dequeues the head action and applies it, returning the resulting
// event. Returns (_, false) when the queue is empty.
func (w *World) Step(ctx context.Context) (action.WorldEvent, bool) {
	act, ok := w.queue.Pop()
	if !ok {
		return action.WorldEvent{}, false
	}
	w.actionLog = append(w.actionLog, act)

	rc := rules.Context{
		Time:        w.time,
		State:       w.state,
		AgentIDs:    w.state.SortedAgentIDs(),
		LocationIDs: w.state.SortedLocationIDs(),
	}
	merged := w.PreAction.Run(ctx, rc, act)
	if w.PostDecision != nil {
		w.PostDecision(merged.Verdict)
	}

	var ev action.WorldEvent
	if merged.Verdict == rules.VerdictDeny {
		ev = w.rejectedEvent(act, errRuleDenied(merged.Notes))
	} else {
		effective := merged.Action
		applied, err := reduce(w.state, w.time, effective)
		if err != nil {
			ev = w.rejectedEvent(act, err)
		} else {
			applied.ID = w.nextEventID()
			applied.Caused = act.ID
			applied.At = w.time
			ev = applied
		}
	}

	w.time++
	w.journal = append(w.journal, ev)

	for _, h := range w.PostAction.Hooks() {
		h.Evaluate(ctx, rc, act)
	}
	if w.PostEvent != nil {
		w.PostEvent(ctx, ev)
	}

	w.advanceSchedule(ctx)

	return ev, true
}

func (w *World) nextEventID() world.EventID {
	seq, era := w.eventCounter.Next()
	return world.EventID{Seq: seq, Era: era}
}

// AppendDerivedEvent assigns an id and the current tick to ev and appends it
// to the journal, for events produced out-of-band from step()'s own reducer
// call — namely module runtime events fanned out from a PostEvent hook.
func (w *World) AppendDerivedEvent(ev action.WorldEvent) action.WorldEvent {
	ev.ID = w.nextEventID()
	ev.At = w.time
	w.journal = append(w.journal, ev)
	return ev
}

func (w *World) rejectedEvent(act action.Action, err error) action.WorldEvent {
	rej := toRejectedPayload(err)
	w.log.Debug("action rejected", log.String("kind", string(act.Kind)), log.String("code", rej.Code))
	return action.WorldEvent{
		ID:             w.nextEventID(),
		Kind:           action.EventActionRejected,
		Caused:         act.ID,
		At:             w.time,
		ActionRejected: rej,
	}
}

// RestoreFrom replaces kernel state wholesale, used by from_snapshot
// recovery. It bumps both counters' era so that ids minted after recovery
// cannot collide with pre-recovery ids even under a truncated journal
// (§3.1, §9).
func (w *World) RestoreFrom(state *world.State, journal []action.WorldEvent, pending []action.Action, t action.WorldTime, actionSeq, actionEra, eventSeq, eventEra uint64) {
	w.state = state
	w.journal = journal
	w.actionLog = nil
	w.queue = action.NewQueue()
	w.queue.Restore(pending)
	w.time = t
	w.actionCounter = world.NewCounter()
	w.actionCounter.Restore(actionSeq, actionEra)
	w.eventCounter = world.NewCounter()
	w.eventCounter.Restore(eventSeq, eventEra)
	w.BumpEraForRecovery()
}

// BumpEraForRecovery advances both id counters' era, isolating freshly minted
// ids from anything issued before an out-of-band rollback.
func (w *World) BumpEraForRecovery() {
	w.actionCounter.BumpEra()
	w.eventCounter.BumpEra()
}
