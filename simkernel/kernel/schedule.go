package kernel

import (
	"context"
	"sort"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

// advanceSchedule finalizes any pending factory builds, recipes, contract
// expirations, and crisis timeouts that have reached their due tick. Each
// completion is its own journaled event, appended at the current tick but
// without a causing action (Caused is the zero ActionID) — step()'s "one
// event per submitted action" contract covers the action that was just
// applied; these are background completions the spec's scheduling fields
// (complete_at/expires_at/timeout_at) imply but don't tie to a single caller.
func (w *World) advanceSchedule(ctx context.Context) {
	now := int64(w.time)
	s := w.state

	remainingBuilds := s.PendingFactoryBuilds[:0]
	for _, b := range s.PendingFactoryBuilds {
		if b.CompleteAt > now {
			remainingBuilds = append(remainingBuilds, b)
			continue
		}
		if f, ok := s.Facilities[b.FacilityID]; ok {
			f.Busy = false
		}
		w.appendBackgroundEvent(ctx, action.WorldEvent{
			Kind:         action.EventFactoryBuilt,
			FactoryBuilt: &action.FactoryBuiltPayload{FacilityID: b.FacilityID},
		})
	}
	s.PendingFactoryBuilds = remainingBuilds

	remainingRecipes := s.PendingRecipes[:0]
	for _, r := range s.PendingRecipes {
		if r.CompleteAt > now {
			remainingRecipes = append(remainingRecipes, r)
			continue
		}
		if f, ok := s.Facilities[r.FacilityID]; ok {
			if f.UsedSlots > 0 {
				f.UsedSlots--
			}
			if f.ActiveRecipeID == r.RecipeID {
				f.ActiveRecipeID = ""
			}
		}
		w.appendBackgroundEvent(ctx, action.WorldEvent{
			Kind:            action.EventRecipeCompleted,
			RecipeCompleted: &action.RecipeCompletedPayload{RecipeID: r.RecipeID, FacilityID: r.FacilityID},
		})
	}
	s.PendingRecipes = remainingRecipes

	for _, id := range sortedContractIDs(s) {
		c := s.Contracts[id]
		if c.State == world.ContractOpened && c.ExpiresAt > 0 && c.ExpiresAt <= now {
			c.State = world.ContractExpired
			w.appendBackgroundEvent(ctx, action.WorldEvent{
				Kind:                    action.EventEconomicContractExpired,
				EconomicContractExpired: &action.EconomicContractExpiredPayload{ContractID: id},
			})
		}
	}

	for _, id := range sortedCrisisIDs(s) {
		c := s.Crises[id]
		if c.State == world.CrisisActive && c.TimeoutAt > 0 && c.TimeoutAt <= now {
			resolvedAt := now
			c.ResolvedAt = &resolvedAt
			c.State = world.CrisisTimedOut
			w.appendBackgroundEvent(ctx, action.WorldEvent{
				Kind:           action.EventCrisisTimedOut,
				CrisisTimedOut: &action.CrisisTimedOutPayload{CrisisID: id},
			})
		}
	}
}

func (w *World) appendBackgroundEvent(ctx context.Context, ev action.WorldEvent) {
	ev.ID = w.nextEventID()
	ev.At = w.time
	w.journal = append(w.journal, ev)
	if w.PostEvent != nil {
		w.PostEvent(ctx, ev)
	}
}

func sortedContractIDs(s *world.State) []string {
	out := make([]string, 0, len(s.Contracts))
	for id := range s.Contracts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortedCrisisIDs(s *world.State) []string {
	out := make([]string, 0, len(s.Crises))
	for id := range s.Crises {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
