// Package metrics exposes the kernel's operational counters as prometheus
// collectors, registered against an injected prometheus.Registerer the way
// the consensus package's metrics.Metrics wraps one (§4.8 EXPANSION).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge/histogram a running worldd instance
// exposes. It carries no world-specific state; callers pass labels at the
// call site (action kind, module id, reject reason).
type Metrics struct {
	ActionsTotal         *prometheus.CounterVec
	ActionsRejectedTotal *prometheus.CounterVec
	ModuleCallsTotal     *prometheus.CounterVec
	RuleDecisionsTotal   *prometheus.CounterVec
	SnapshotDuration     prometheus.Histogram
	HeadCommitsTotal     *prometheus.CounterVec
	LeaseAcquireTotal    *prometheus.CounterVec
}

// New constructs and registers every collector against reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_world_actions_total",
			Help: "Total actions processed by step(), labeled by action kind.",
		}, []string{"kind"}),
		ActionsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_world_actions_rejected_total",
			Help: "Total actions rejected, labeled by action kind and reject reason code.",
		}, []string{"kind", "reason"}),
		ModuleCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_world_module_calls_total",
			Help: "Total module sandbox calls, labeled by module id and outcome.",
		}, []string{"module_id", "outcome"}),
		RuleDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_world_rule_decisions_total",
			Help: "Total rule hook verdicts after merge, labeled by verdict.",
		}, []string{"verdict"}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_world_snapshot_duration_seconds",
			Help:    "Wall-clock time to build and persist a snapshot.",
			Buckets: prometheus.DefBuckets,
		}),
		HeadCommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_world_head_commits_total",
			Help: "Total PoS-committed head advances, labeled by world id.",
		}, []string{"world_id"}),
		LeaseAcquireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_world_lease_acquire_total",
			Help: "Total lease acquisition attempts, labeled by scope and outcome.",
		}, []string{"scope", "outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.ActionsTotal, m.ActionsRejectedTotal, m.ModuleCallsTotal,
		m.RuleDecisionsTotal, m.SnapshotDuration, m.HeadCommitsTotal, m.LeaseAcquireTotal,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

// ObserveAction records one processed action by kind.
func (m *Metrics) ObserveAction(kind string) {
	m.ActionsTotal.WithLabelValues(kind).Inc()
}

// ObserveRejection records one rejected action by kind and reason code.
func (m *Metrics) ObserveRejection(kind, reason string) {
	m.ActionsRejectedTotal.WithLabelValues(kind, reason).Inc()
}

// ObserveModuleCall records one module call outcome ("ok" or "failed").
func (m *Metrics) ObserveModuleCall(moduleID, outcome string) {
	m.ModuleCallsTotal.WithLabelValues(moduleID, outcome).Inc()
}

// ObserveRuleDecision records one merged rule verdict ("allow", "deny", "modify").
func (m *Metrics) ObserveRuleDecision(verdict string) {
	m.RuleDecisionsTotal.WithLabelValues(verdict).Inc()
}

// ObserveHeadCommit records one PoS-committed head advance for worldID.
func (m *Metrics) ObserveHeadCommit(worldID string) {
	m.HeadCommitsTotal.WithLabelValues(worldID).Inc()
}

// ObserveLeaseAcquire records one lease acquisition attempt ("granted" or "denied").
func (m *Metrics) ObserveLeaseAcquire(scope, outcome string) {
	m.LeaseAcquireTotal.WithLabelValues(scope, outcome).Inc()
}
