package ledger

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/pool"
)

// nominalClaimGas is the synthetic cost reported by the embedded ledger,
// roughly what a bitmap flip plus an ERC-721 transfer costs on mainnet.
const nominalClaimGas = 120_000

// Embedded adapts the in-process ClaimPool to the ledger interfaces. It is
// the backend for local development and tests; operations execute
// synchronously and confirmation is immediate.
type Embedded struct {
	pool      *pool.ClaimPool
	authority common.Address
	owner     common.Address
	seq       atomic.Uint64
}

// NewEmbedded wraps a ClaimPool. authority is used as the caller of relayed
// operations, owner as the caller of admin operations.
func NewEmbedded(p *pool.ClaimPool, authority, owner common.Address) *Embedded {
	return &Embedded{pool: p, authority: authority, owner: owner}
}

// Pool exposes the underlying engine for direct-path claims.
func (e *Embedded) Pool() *pool.ClaimPool {
	return e.pool
}

func (e *Embedded) IsTokenAvailable(_ context.Context, id domain.TokenID) (bool, error) {
	return e.pool.IsTokenAvailable(id), nil
}

func (e *Embedded) AvailableTokens(_ context.Context) ([]domain.TokenID, error) {
	return e.pool.AvailableTokens(), nil
}

func (e *Embedded) Nonce(_ context.Context, claimant common.Address) (uint64, error) {
	return e.pool.Nonce(claimant), nil
}

func (e *Embedded) HasClaimed(_ context.Context, claimant common.Address) (bool, error) {
	return e.pool.HasClaimed(claimant), nil
}

func (e *Embedded) ClaimedBitmap(_ context.Context) (*uint256.Int, error) {
	return e.pool.ClaimedBitmap(), nil
}

func (e *Embedded) DepositedBitmap(_ context.Context) (*uint256.Int, error) {
	return e.pool.DepositedBitmap(), nil
}

func (e *Embedded) ObservationEvents(_ context.Context) ([]domain.ObservationEvent, error) {
	return e.pool.ObservationEvents(), nil
}

func (e *Embedded) EstimateClaimGas(_ context.Context, _ common.Address, _ domain.TokenID, _ string) (uint64, error) {
	return nominalClaimGas, nil
}

func (e *Embedded) SubmitRelayClaim(_ context.Context, recipient common.Address, tokenID domain.TokenID, text string, _ uint64) (*Submission, error) {
	if err := e.pool.RelayClaim(e.authority, recipient, tokenID, text); err != nil {
		return nil, err
	}
	return &Submission{TxHash: e.syntheticHash(recipient, tokenID)}, nil
}

// WaitConfirmed returns immediately: embedded submissions are final.
func (e *Embedded) WaitConfirmed(_ context.Context, _ common.Hash) error {
	return nil
}

func (e *Embedded) syntheticHash(recipient common.Address, tokenID domain.TokenID) common.Hash {
	var buf [common.AddressLength + 2 + 8]byte
	copy(buf[:], recipient.Bytes())
	binary.BigEndian.PutUint16(buf[common.AddressLength:], uint16(tokenID))
	binary.BigEndian.PutUint64(buf[common.AddressLength+2:], e.seq.Add(1))
	return crypto.Keccak256Hash(buf[:])
}

func (e *Embedded) Deposit(_ context.Context, ids []domain.TokenID) error {
	return e.pool.Deposit(e.owner, ids)
}

func (e *Embedded) Withdraw(_ context.Context, ids []domain.TokenID, to common.Address) error {
	return e.pool.Withdraw(e.owner, ids, to)
}

func (e *Embedded) EmergencyWithdrawAll(_ context.Context, to common.Address) error {
	return e.pool.EmergencyWithdrawAll(e.owner, to)
}

func (e *Embedded) SetAuthority(_ context.Context, newAuthority common.Address) error {
	return e.pool.SetAuthority(e.owner, newAuthority)
}

func (e *Embedded) ResetClaimStatus(_ context.Context, claimant common.Address) error {
	return e.pool.ResetClaimStatus(e.owner, claimant)
}

func (e *Embedded) ResetNonce(_ context.Context, claimant common.Address, value uint64) error {
	return e.pool.ResetNonce(e.owner, claimant, value)
}

func (e *Embedded) Pause(_ context.Context) error {
	return e.pool.Pause(e.owner)
}

func (e *Embedded) Unpause(_ context.Context) error {
	return e.pool.Unpause(e.owner)
}
