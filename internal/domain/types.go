package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenID identifies a token in the pool, in [1, MaxSupply].
type TokenID uint16

// Valid reports whether the id falls inside the pool range.
func (id TokenID) Valid() bool {
	return id >= 1 && id <= MaxSupply
}

// Observation is the permanent textual artifact recorded for a token at
// claim time. Exactly one exists per claimed token, forever.
type Observation struct {
	TokenID   TokenID        `json:"tokenId"`
	Text      string         `json:"text"`
	Author    common.Address `json:"author"`
	Timestamp time.Time      `json:"timestamp"`
}

// ObservationEvent is one entry of the append-only observation event log.
// Seq is the position in the log, assigned by the ledger.
type ObservationEvent struct {
	Seq       uint64         `json:"seq"`
	TokenID   TokenID        `json:"tokenId"`
	Text      string         `json:"text"`
	Author    common.Address `json:"author"`
	Timestamp time.Time      `json:"timestamp"`
}

// EvalOutcome classifies the evaluator's verdict on an observation.
type EvalOutcome string

const (
	// OutcomeApproved admits the observation.
	OutcomeApproved EvalOutcome = "approved"
	// OutcomeSoftReject asks for more effort. Soft rejections carry a
	// follow-up prompt and never count as a trust strike.
	OutcomeSoftReject EvalOutcome = "soft_reject"
	// OutcomeHardReject marks low-effort or abusive input. Hard rejections
	// count toward the origin's strike budget.
	OutcomeHardReject EvalOutcome = "hard_reject"
	// OutcomeUnavailable means the evaluator could not be reached. The
	// claim is rejected with a distinct message and the origin is not
	// penalized.
	OutcomeUnavailable EvalOutcome = "unavailable"
)

// Evaluation is the strict, tagged form of the evaluator's response. It is
// parsed once at the boundary and never passed around as raw JSON.
type Evaluation struct {
	Outcome  EvalOutcome `json:"outcome"`
	Score    int         `json:"score"`
	Reason   string      `json:"reason,omitempty"`
	FollowUp string      `json:"followUp,omitempty"`
}

// ClaimRequest is a direct-path claim: the caller presents a signature from
// the trusted authority over (claimant, tokenID, text, current nonce).
type ClaimRequest struct {
	Claimant  common.Address
	TokenID   TokenID
	Text      string
	Signature []byte
}

// ClaimTicket is a self-contained, independently verifiable authorization
// artifact. It is issued when relay submission ultimately fails so the
// claimant can complete the transfer through the direct path.
type ClaimTicket struct {
	Claimant  common.Address `json:"claimant"`
	TokenID   TokenID        `json:"tokenId"`
	Text      string         `json:"text"`
	Nonce     uint64         `json:"nonce"`
	Signature string         `json:"signature"` // hex, 65 bytes
}
