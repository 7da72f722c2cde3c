package metrics

import "sync/atomic"

// Metrics is the set of service counters exposed by the /metrics endpoint.
// All counters are monotonic for the lifetime of the process.
type Metrics struct {
	ClaimsReceived     atomic.Uint64
	ClaimsApproved     atomic.Uint64
	ClaimsSoftRejected atomic.Uint64
	ClaimsHardRejected atomic.Uint64
	ClaimsConfirmed    atomic.Uint64
	EvaluatorErrors    atomic.Uint64
	GateRejections     atomic.Uint64
	RelayFallbacks     atomic.Uint64
}

// New creates a zeroed counter set.
func New() *Metrics {
	return &Metrics{}
}

// Snapshot returns a point-in-time copy of every counter, keyed by the name
// it is published under.
func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"claims_received":      m.ClaimsReceived.Load(),
		"claims_approved":      m.ClaimsApproved.Load(),
		"claims_soft_rejected": m.ClaimsSoftRejected.Load(),
		"claims_hard_rejected": m.ClaimsHardRejected.Load(),
		"claims_confirmed":     m.ClaimsConfirmed.Load(),
		"evaluator_errors":     m.EvaluatorErrors.Load(),
		"gate_rejections":      m.GateRejections.Load(),
		"relay_fallbacks":      m.RelayFallbacks.Load(),
	}
}
