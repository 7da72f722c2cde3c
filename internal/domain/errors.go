package domain

import "errors"

var (
	// ErrInvalidTokenID is returned for ids outside [1, MaxSupply].
	ErrInvalidTokenID = errors.New("invalid token id")

	// ErrTextLength is returned when the observation text is empty or
	// longer than MaxObservationLength characters.
	ErrTextLength = errors.New("observation text length out of bounds")

	// ErrTokenUnavailable is returned when a token is not deposited, is
	// already claimed, or is not in pool custody.
	ErrTokenUnavailable = errors.New("token not available")

	// ErrAlreadyClaimed is returned when the claimant has already claimed.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrBadSignature is returned when the claim signature does not
	// recover to the trusted authority.
	ErrBadSignature = errors.New("invalid authorization signature")

	// ErrStaleNonce is returned when a signature was built over a consumed
	// nonce, i.e. a replayed authorization.
	ErrStaleNonce = errors.New("stale or reused nonce")

	// ErrNotAuthority is returned when a relay-path operation is invoked
	// by anyone other than the configured authority.
	ErrNotAuthority = errors.New("caller is not the trusted authority")

	// ErrNotOwner is returned when an admin operation is invoked by
	// anyone other than the pool owner.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrNotHolder is returned when add-observation is invoked by an
	// account that does not hold the token.
	ErrNotHolder = errors.New("caller does not hold the token")

	// ErrObservationExists is returned on a second observation for a token.
	ErrObservationExists = errors.New("observation already recorded")

	// ErrZeroRecipient is returned when a withdrawal names the zero address.
	ErrZeroRecipient = errors.New("recipient is the zero address")

	// ErrPaused is returned when a state-changing operation hits a paused pool.
	ErrPaused = errors.New("pool is paused")

	// ErrNotPaused is returned when emergency withdrawal is attempted on a
	// running pool.
	ErrNotPaused = errors.New("pool is not paused")

	// ErrEvaluatorUnavailable is returned when the scoring service cannot
	// be reached or answers malformed.
	ErrEvaluatorUnavailable = errors.New("evaluator unavailable")

	// ErrInsufficientFunds is returned when the relayer account cannot
	// cover the submission fee. Terminal, never retried.
	ErrInsufficientFunds = errors.New("insufficient relayer funds")
)
