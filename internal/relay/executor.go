package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/ledger"
	"github.com/halide-works/aperture-drop/internal/logger"
	"github.com/halide-works/aperture-drop/internal/pool"
)

const (
	// gasMarginPercent is the safety margin applied over the gas estimate.
	gasMarginPercent = 20
	// maxAttempts bounds submission retries on recoverable errors.
	maxAttempts = 3
	// initialBackoff is the first retry delay; it doubles per attempt.
	initialBackoff = 2 * time.Second
	// confirmTimeout bounds a background confirmation task.
	confirmTimeout = 5 * time.Minute
	// defaultWorkers sizes the background confirmation pool.
	defaultWorkers = 16
)

// Mode selects the response behavior of a submission.
type Mode string

const (
	// ModeOptimistic returns right after submission; finality is tracked
	// by a background task and exposed through the status store.
	ModeOptimistic Mode = "optimistic"
	// ModeConfirmed blocks until finality.
	ModeConfirmed Mode = "confirmed"
)

// Operation is an approved claim waiting to be relayed.
type Operation struct {
	Recipient common.Address
	TokenID   domain.TokenID
	Text      string
}

// Result is the outcome of a Submit call. When relay ultimately fails,
// FallbackTicket carries the signed authorization so the claimant can
// finish through the direct path; an approved claim is never dropped.
type Result struct {
	Handle         string
	TxHash         common.Hash
	Confirmed      bool
	FallbackTicket *domain.ClaimTicket
}

// Executor submits approved claims to the ledger with cost estimation,
// bounded retries and an optimistic/confirmed dual response mode.
type Executor struct {
	submitter ledger.Submitter
	reader    ledger.Reader
	authority *pool.Authority
	status    *StatusStore
	workers   pond.Pool

	// newBackOff is swappable in tests to avoid real sleeps.
	newBackOff func() backoff.BackOff
}

// NewExecutor creates an Executor. authority signs fallback tickets.
func NewExecutor(submitter ledger.Submitter, reader ledger.Reader, authority *pool.Authority, status *StatusStore) *Executor {
	return &Executor{
		submitter: submitter,
		reader:    reader,
		authority: authority,
		status:    status,
		workers:   pond.NewPool(defaultWorkers),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initialBackoff
			b.Multiplier = 2
			b.RandomizationFactor = 0
			return backoff.WithMaxRetries(b, maxAttempts-1)
		},
	}
}

// SetBackOffFactory overrides the retry schedule, for tests.
func (e *Executor) SetBackOffFactory(f func() backoff.BackOff) {
	e.newBackOff = f
}

// Status exposes the status store for the polling endpoint.
func (e *Executor) Status() *StatusStore {
	return e.status
}

// Submit relays an approved claim. Recoverable submission errors retry with
// exponential backoff up to the attempt bound; terminal errors abort at
// once. If submission ultimately fails, a signed fallback ticket is issued
// and returned alongside the error.
func (e *Executor) Submit(ctx context.Context, op Operation, mode Mode) (*Result, error) {
	handle := uuid.NewString()

	var sub *ledger.Submission
	attempt := 0
	submitOnce := func() error {
		attempt++
		gas, err := e.submitter.EstimateClaimGas(ctx, op.Recipient, op.TokenID, op.Text)
		if err != nil {
			return e.classify(ctx, err, attempt)
		}
		gasLimit := gas + gas*gasMarginPercent/100

		sub, err = e.submitter.SubmitRelayClaim(ctx, op.Recipient, op.TokenID, op.Text, gasLimit)
		if err != nil {
			return e.classify(ctx, err, attempt)
		}
		return nil
	}

	if err := backoff.Retry(submitOnce, backoff.WithContext(e.newBackOff(), ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		e.status.Set(handle, StateFailed, common.Hash{}, err.Error())
		return e.fallback(ctx, handle, op, err)
	}

	e.status.Set(handle, StatePending, sub.TxHash, "")
	result := &Result{Handle: handle, TxHash: sub.TxHash}

	switch mode {
	case ModeConfirmed:
		if err := e.submitter.WaitConfirmed(ctx, sub.TxHash); err != nil {
			e.status.Set(handle, StateFailed, sub.TxHash, err.Error())
			return result, fmt.Errorf("submission %s not confirmed: %w", sub.TxHash, err)
		}
		e.status.Set(handle, StateConfirmed, sub.TxHash, "")
		result.Confirmed = true
		return result, nil

	default:
		// Detached from the request context on purpose: the originating
		// request completing must not cancel confirmation tracking.
		e.confirmInBackground(handle, sub.TxHash)
		return result, nil
	}
}

// confirmInBackground tracks finality for an optimistic submission. The
// outcome lands in the status store; there is no cancellation path.
func (e *Executor) confirmInBackground(handle string, txHash common.Hash) {
	e.workers.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
		defer cancel()

		if err := e.submitter.WaitConfirmed(ctx, txHash); err != nil {
			e.status.Set(handle, StateFailed, txHash, err.Error())
			logger.Error(fmt.Errorf("background confirmation failed: %w", err),
				zap.String("handle", handle),
				zap.String("tx_hash", txHash.Hex()),
			)
			return
		}
		e.status.Set(handle, StateConfirmed, txHash, "")
		logger.Info("Relay submission confirmed",
			zap.String("handle", handle),
			zap.String("tx_hash", txHash.Hex()),
		)
	})
}

// fallback issues the self-serve authorization artifact after a terminal
// relay failure.
func (e *Executor) fallback(ctx context.Context, handle string, op Operation, cause error) (*Result, error) {
	nonce, nErr := e.reader.Nonce(ctx, op.Recipient)
	if nErr != nil {
		return &Result{Handle: handle}, fmt.Errorf("relay failed and fallback nonce lookup failed: %w", errors.Join(cause, nErr))
	}

	ticket, tErr := e.authority.Ticket(op.Recipient, op.TokenID, op.Text, nonce)
	if tErr != nil {
		return &Result{Handle: handle}, fmt.Errorf("relay failed and ticket signing failed: %w", errors.Join(cause, tErr))
	}

	logger.Warn("Relay failed, issued fallback ticket",
		zap.String("handle", handle),
		zap.String("recipient", op.Recipient.Hex()),
		zap.Uint16("token_id", uint16(op.TokenID)),
		zap.Error(cause),
	)
	return &Result{Handle: handle, FallbackTicket: &ticket}, cause
}

// classify wraps terminal errors as permanent so backoff stops retrying.
// Unknown errors are assumed transient (network or provider hiccups).
func (e *Executor) classify(ctx context.Context, err error, attempt int) error {
	if isTerminal(err) {
		return backoff.Permanent(err)
	}
	logger.WarnCtx(ctx, "Recoverable relay submission error",
		zap.Int("attempt", attempt),
		zap.Error(err),
	)
	return err
}

func isTerminal(err error) bool {
	switch {
	case errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrTokenUnavailable),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidTokenID),
		errors.Is(err, domain.ErrTextLength),
		errors.Is(err, domain.ErrNotAuthority),
		errors.Is(err, domain.ErrPaused),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

// Close drains the background confirmation pool.
func (e *Executor) Close() {
	e.workers.StopAndWait()
}
