package runtime

import (
	"context"

	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

// NullSandbox is the in-process built-in sandbox flavour (§4.3: "built-in,
// registered by id"): it performs no WASM execution, simply echoing the
// input's state bytes back unchanged and producing no effects/emits. It
// exists so a deployment without a WASM host still has a Sandbox that
// enforces ModuleLimits.MaxOutputBytes and never exceeds declared limits,
// rather than leaving ExecuteModuleCall with no implementor at all.
type NullSandbox struct{}

// Call implements Sandbox.
func (NullSandbox) Call(_ context.Context, req CallInput, limits world.ModuleLimits) (CallOutput, *CallFailure) {
	out := CallOutput{NewState: req.State, OutputBytes: len(req.State)}
	if limits.MaxOutputBytes > 0 && uint64(out.OutputBytes) > limits.MaxOutputBytes {
		return CallOutput{}, &CallFailure{
			ModuleID: req.Ctx.ModuleID,
			Code:     FailureInvalidOutput,
			Detail:   "echoed state exceeds max_output_bytes",
		}
	}
	return out, nil
}
