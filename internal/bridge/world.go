package bridge

import (
	"context"
	"time"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/distributed"
	"github.com/eng-cc/agent-world-sub009/simkernel/gossip"
	"github.com/eng-cc/agent-world-sub009/simkernel/kernel"
	"github.com/eng-cc/agent-world-sub009/simkernel/lease"
	"github.com/eng-cc/agent-world-sub009/simkernel/log"
	"github.com/eng-cc/agent-world-sub009/simkernel/metrics"
	"github.com/eng-cc/agent-world-sub009/simkernel/persistence"
	"github.com/eng-cc/agent-world-sub009/simkernel/pos"
	"github.com/eng-cc/agent-world-sub009/simkernel/rules"
	"github.com/eng-cc/agent-world-sub009/simkernel/runtime"
	"github.com/eng-cc/agent-world-sub009/simkernel/world"
)

// Instance is one running world: the kernel plus every surrounding package
// wired together (rule pipeline, module runtime, persistence, distributed
// head validation, PoS gating, lease coordination, metrics).
type Instance struct {
	Config  Config
	Kernel  *kernel.World
	Runtime *runtime.Registry
	CAS     *persistence.CAS
	Dir     *persistence.Directory
	Modules *persistence.ModuleStore
	Transport *distributed.LoopbackTransport
	Gossip  *gossip.Router
	PosGate *pos.Gate
	Leases  *lease.ScopedManager
	Metrics *metrics.Metrics

	height uint64
	log    *log.Logger
}

// New assembles an Instance: an empty kernel world, a module runtime bound
// to sandbox, an in-process CAS + directory rooted at cfg.StateDir, a
// loopback distributed transport, a PoS gate over validators, and a
// single-writer lease manager scoped per world id.
func New(cfg Config, sandbox runtime.Sandbox, validators pos.ValidatorSet) (*Instance, error) {
	m, err := metrics.New(nil)
	if err != nil {
		return nil, err
	}
	k := kernel.New()
	inst := &Instance{
		Config:    cfg,
		Kernel:    k,
		Runtime:   runtime.NewRegistry(k.State(), sandbox),
		CAS:       persistence.NewCAS(1024),
		Dir:       persistence.NewDirectory(cfg.StateDir),
		Modules:   persistence.NewModuleStore(cfg.StateDir),
		Transport: distributed.NewLoopbackTransport(),
		PosGate:   pos.NewGate(validators, cfg.QuorumNum, cfg.QuorumDenom),
		Leases:    lease.NewScopedManager(),
		Metrics:   m,
		log:       log.Default("bridge"),
	}
	inst.Gossip = gossip.NewRouter(inst.Transport, inst.Transport)

	k.PostEvent = func(ctx context.Context, ev action.WorldEvent) {
		if acts := inst.Kernel.ActionLog(); len(acts) > 0 && ev.Caused != (world.ActionID{}) && acts[len(acts)-1].ID == ev.Caused {
			kind := string(acts[len(acts)-1].Kind)
			inst.Metrics.ObserveAction(kind)
			if ev.Kind == action.EventActionRejected && ev.ActionRejected != nil {
				inst.Metrics.ObserveRejection(kind, ev.ActionRejected.Code)
			}
		}

		produced := inst.Runtime.DispatchEvent(ctx, ev, runtime.StagePostEvent)
		for _, pev := range produced {
			inst.Kernel.AppendDerivedEvent(pev)
			switch {
			case pev.ModuleRuntimeCharged != nil:
				inst.Metrics.ObserveModuleCall(string(pev.ModuleRuntimeCharged.ModuleID), "ok")
			case pev.ModuleCallFailed != nil:
				inst.Metrics.ObserveModuleCall(string(pev.ModuleCallFailed.ModuleID), "failed")
			}
		}
	}
	k.PostDecision = func(v rules.Verdict) {
		inst.Metrics.ObserveRuleDecision(string(v))
	}

	return inst, nil
}

// RegisterBuiltinRule adds a closure-flavoured hook to the pre-action stage,
// the common case for a native rule module.
func (w *Instance) RegisterBuiltinRule(name string, fn func(context.Context, rules.Context, action.Action) rules.Decision) {
	w.Kernel.PreAction.Register(rules.ClosureHook{Name: name, Fn: fn})
}

// Step submits act and advances the kernel by one tick, recording the
// resulting verdict/action metrics.
func (w *Instance) Step(ctx context.Context, act action.Action) (action.WorldEvent, bool) {
	w.Kernel.SubmitAction(act)
	return w.Kernel.Step(ctx)
}

// Snapshot builds and saves the current world state through the directory
// layer, then assembles and submits a WorldBlock to the local head service
// once the PoS gate confirms commit, publishing it to the replication topic.
func (w *Instance) Snapshot(ctx context.Context, nowMs int64, proposer string, slot uint64) (distributed.WorldBlock, error) {
	start := time.Now()
	defer func() { w.Metrics.SnapshotDuration.Observe(time.Since(start).Seconds()) }()

	aSeq, aEra, eSeq, eEra := w.Kernel.Counters()
	snap := persistence.Build(w.Kernel.Time(), w.Kernel.State(), w.Kernel.PendingActions(), len(w.Kernel.Journal()), aSeq, aEra, eSeq, eEra)

	if err := w.Dir.Save(w.CAS, snap, w.Kernel.Journal(), nowMs); err != nil {
		return distributed.WorldBlock{}, err
	}

	manifest, _, err := persistence.ChunkAndStore(w.CAS, snap, 0)
	if err != nil {
		return distributed.WorldBlock{}, err
	}
	segments, err := persistence.SegmentJournal(w.CAS, w.Kernel.Journal(), 0)
	if err != nil {
		return distributed.WorldBlock{}, err
	}

	head, hasHead, err := w.Transport.Head(ctx, w.Config.WorldID)
	if err != nil {
		return distributed.WorldBlock{}, err
	}
	parentHash := ""
	if hasHead {
		parentHash = head.BlockHash
	}
	w.height++

	receipts := make([]distributed.Receipt, 0, len(w.Kernel.Journal()))
	for _, ev := range w.Kernel.Journal() {
		receipts = append(receipts, distributed.Receipt{EventID: ev.ID, Outcome: string(ev.Kind)})
	}

	block, err := distributed.BuildBlock(w.Config.WorldID, w.height, parentHash, manifest, segments, manifest.StateRoot, w.Kernel.ActionLog(), w.Kernel.Journal(), receipts, nowMs)
	if err != nil {
		return distributed.WorldBlock{}, err
	}
	blockHash, err := distributed.BlockHash(block)
	if err != nil {
		return distributed.WorldBlock{}, err
	}

	epoch := pos.EpochLength(slot, w.Config.EpochLengthSlots)
	if err := w.PosGate.ProposeHead(w.Config.WorldID, w.height, blockHash, proposer, slot, nowMs, epoch, epoch); err != nil {
		return distributed.WorldBlock{}, err
	}

	if w.PosGate.Decide(w.Config.WorldID, w.height, blockHash) != pos.DecisionCommitted {
		return block, nil
	}

	if err := w.Transport.Submit(ctx, block); err != nil {
		return distributed.WorldBlock{}, err
	}
	w.Metrics.ObserveHeadCommit(w.Config.WorldID)
	if err := w.Gossip.Publish(ctx, gossip.ReplicationTopic(w.Config.WorldID), block); err != nil {
		w.log.Warn("failed to publish committed block", log.Err(err))
	}
	return block, nil
}

// AcquireWriterLease tries to acquire the single-writer lease for this
// world's proposer scope, recording the outcome to metrics.
func (w *Instance) AcquireWriterLease(holder string, now, ttl int64) (lease.Lease, error) {
	l, err := w.Leases.TryAcquire(w.Config.WorldID, holder, now, ttl)
	if err != nil {
		w.Metrics.ObserveLeaseAcquire(w.Config.WorldID, "denied")
		return lease.Lease{}, err
	}
	w.Metrics.ObserveLeaseAcquire(w.Config.WorldID, "granted")
	return l, nil
}
