package orchestrator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/evaluator"
	"github.com/halide-works/aperture-drop/internal/ledger"
	"github.com/halide-works/aperture-drop/internal/logger"
	"github.com/halide-works/aperture-drop/internal/metrics"
	"github.com/halide-works/aperture-drop/internal/observations"
	"github.com/halide-works/aperture-drop/internal/relay"
	"github.com/halide-works/aperture-drop/internal/trustgate"
)

// Phase is the position of a claim in its lifecycle. Terminal phases are
// SoftRejected, HardRejected, Confirmed and ManualFallback.
type Phase string

const (
	PhaseReceived       Phase = "RECEIVED"
	PhaseGateChecked    Phase = "GATE_CHECKED"
	PhaseEvaluated      Phase = "EVALUATED"
	PhaseSoftRejected   Phase = "SOFT_REJECTED"
	PhaseHardRejected   Phase = "HARD_REJECTED"
	PhaseAuthorized     Phase = "AUTHORIZED"
	PhaseRelayed        Phase = "RELAYED"
	PhaseConfirmed      Phase = "CONFIRMED"
	PhaseManualFallback Phase = "MANUAL_FALLBACK"
)

// Messages surfaced to claimants. Kept here so the API layer never invents
// copy of its own.
const (
	msgApproved    = "Observation accepted. Your token is on its way."
	msgSoftReject  = "Close, but not quite there yet."
	msgHardReject  = "This observation does not qualify for a token."
	msgUnavailable = "We could not score your observation right now. Nothing was counted against you; please try again in a few minutes."
	msgFallback    = "Your observation was accepted, but automatic delivery failed. Use the included ticket to complete the claim yourself."
)

// Request is one inbound claim attempt.
type Request struct {
	Claimant common.Address
	TokenID  domain.TokenID
	Text     string
	// Origin identifies the caller for trust accounting (client IP).
	Origin string
}

// Outcome is the terminal result of processing one claim attempt.
type Outcome struct {
	Phase      Phase
	Evaluation domain.Evaluation
	Message    string

	// Claimed is true once the ledger mutation succeeded.
	Claimed bool
	// Broadcasting is true when confirmation is still tracked in the
	// background (optimistic mode).
	Broadcasting bool

	Relay          *relay.Result
	FallbackTicket *domain.ClaimTicket
}

// Orchestrator drives a claim through gate check, evaluation, eligibility
// re-check and relay submission. It owns the ordering; each collaborator
// owns one concern.
type Orchestrator struct {
	gate      trustgate.Gate
	evaluator evaluator.Evaluator
	reader    ledger.Reader
	executor  *relay.Executor
	index     *observations.Index
	metrics   *metrics.Metrics
	mode      relay.Mode
}

// New creates an Orchestrator. mode selects optimistic or confirmed relay
// responses.
func New(
	gate trustgate.Gate,
	ev evaluator.Evaluator,
	reader ledger.Reader,
	executor *relay.Executor,
	index *observations.Index,
	m *metrics.Metrics,
	mode relay.Mode,
) *Orchestrator {
	return &Orchestrator{
		gate:      gate,
		evaluator: ev,
		reader:    reader,
		executor:  executor,
		index:     index,
		metrics:   m,
		mode:      mode,
	}
}

// ProcessClaim runs one claim attempt end to end. Validation and the gate
// check happen before any side effect; the evaluator verdict decides trust
// accounting; eligibility is re-checked after evaluation because the pool
// may have moved while the text was being scored.
//
// A non-nil error means the attempt was refused (validation, block, or
// ineligibility) or relay failed without a fallback; otherwise the Outcome
// carries the terminal phase.
func (o *Orchestrator) ProcessClaim(ctx context.Context, req Request) (*Outcome, error) {
	o.metrics.ClaimsReceived.Add(1)

	if err := o.validate(req); err != nil {
		return nil, err
	}

	if err := o.gate.Check(req.Origin); err != nil {
		o.metrics.GateRejections.Add(1)
		return nil, err
	}

	if err := o.checkEligibility(ctx, req); err != nil {
		return nil, err
	}

	ev := o.evaluator.Evaluate(ctx, req.Text)
	logger.InfoCtx(ctx, "Observation evaluated", append(evaluator.LogFields(ev),
		zap.String("claimant", req.Claimant.Hex()),
		zap.Uint16("token_id", uint16(req.TokenID)),
	)...)

	switch ev.Outcome {
	case domain.OutcomeUnavailable:
		o.metrics.EvaluatorErrors.Add(1)
		return &Outcome{Phase: PhaseEvaluated, Evaluation: ev, Message: msgUnavailable}, nil

	case domain.OutcomeSoftReject:
		o.metrics.ClaimsSoftRejected.Add(1)
		return &Outcome{Phase: PhaseSoftRejected, Evaluation: ev, Message: msgSoftReject}, nil

	case domain.OutcomeHardReject:
		o.metrics.ClaimsHardRejected.Add(1)
		o.gate.RecordFailure(req.Origin)
		return &Outcome{Phase: PhaseHardRejected, Evaluation: ev, Message: msgHardReject}, nil
	}

	// Approved. A genuine attempt clears any accumulated strikes.
	o.gate.RecordSuccess(req.Origin)
	o.metrics.ClaimsApproved.Add(1)

	// The pool may have moved while the evaluator ran.
	if err := o.checkEligibility(ctx, req); err != nil {
		return nil, err
	}

	return o.relayClaim(ctx, req, ev)
}

func (o *Orchestrator) validate(req Request) error {
	if req.Claimant == (common.Address{}) {
		return domain.ErrZeroRecipient
	}
	if !req.TokenID.Valid() {
		return domain.ErrInvalidTokenID
	}
	if !domain.ValidObservationText(req.Text) {
		return domain.ErrTextLength
	}
	return nil
}

func (o *Orchestrator) checkEligibility(ctx context.Context, req Request) error {
	claimed, err := o.reader.HasClaimed(ctx, req.Claimant)
	if err != nil {
		return fmt.Errorf("failed to check claim status: %w", err)
	}
	if claimed {
		return domain.ErrAlreadyClaimed
	}

	available, err := o.reader.IsTokenAvailable(ctx, req.TokenID)
	if err != nil {
		return fmt.Errorf("failed to check token availability: %w", err)
	}
	if !available {
		return domain.ErrTokenUnavailable
	}
	return nil
}

func (o *Orchestrator) relayClaim(ctx context.Context, req Request, ev domain.Evaluation) (*Outcome, error) {
	result, err := o.executor.Submit(ctx, relay.Operation{
		Recipient: req.Claimant,
		TokenID:   req.TokenID,
		Text:      req.Text,
	}, o.mode)

	if err != nil {
		if result != nil && result.FallbackTicket != nil {
			o.metrics.RelayFallbacks.Add(1)
			logger.WarnCtx(ctx, "Claim falling back to manual completion",
				zap.String("claimant", req.Claimant.Hex()),
				zap.Uint16("token_id", uint16(req.TokenID)),
				zap.Error(err),
			)
			return &Outcome{
				Phase:          PhaseManualFallback,
				Evaluation:     ev,
				Message:        msgFallback,
				Relay:          result,
				FallbackTicket: result.FallbackTicket,
			}, nil
		}
		return nil, fmt.Errorf("relay submission failed: %w", err)
	}

	o.index.Invalidate()

	out := &Outcome{
		Phase:      PhaseRelayed,
		Evaluation: ev,
		Message:    msgApproved,
		Claimed:    true,
		Relay:      result,
	}
	if result.Confirmed {
		out.Phase = PhaseConfirmed
		o.metrics.ClaimsConfirmed.Add(1)
	} else {
		out.Broadcasting = true
	}
	return out, nil
}
