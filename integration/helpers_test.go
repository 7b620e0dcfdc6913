package integration_test

import (
	"context"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/rules"
)

// ruleClosure adapts a simple allow/deny predicate into a rules.Hook, for
// tests that only care about the allow/deny boundary.
func ruleClosure(name string, allow func(action.Action) bool) rules.ClosureHook {
	return rules.ClosureHook{
		Name: name,
		Fn: func(_ context.Context, _ rules.Context, act action.Action) rules.Decision {
			if allow(act) {
				return rules.Decision{ActionID: act.ID, Verdict: rules.VerdictAllow}
			}
			return rules.Decision{ActionID: act.ID, Verdict: rules.VerdictDeny, Notes: []string{"denied by " + name}}
		},
	}
}
