package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/halide-works/aperture-drop/internal/domain"
)

// Reader is the read surface of the claim ledger. The service never treats
// its own memory as authoritative; everything here is re-checkable against
// the ledger at any time.
//
//go:generate mockgen -source=ledger.go -destination=../mocks/ledger.go -package=mocks -mock_names=Reader=MockLedgerReader,Submitter=MockLedgerSubmitter
type Reader interface {
	IsTokenAvailable(ctx context.Context, id domain.TokenID) (bool, error)
	AvailableTokens(ctx context.Context) ([]domain.TokenID, error)
	Nonce(ctx context.Context, claimant common.Address) (uint64, error)
	HasClaimed(ctx context.Context, claimant common.Address) (bool, error)
	ClaimedBitmap(ctx context.Context) (*uint256.Int, error)
	DepositedBitmap(ctx context.Context) (*uint256.Int, error)
	ObservationEvents(ctx context.Context) ([]domain.ObservationEvent, error)
}

// Submission identifies a state-changing operation in flight.
type Submission struct {
	TxHash common.Hash
}

// Submitter is the write surface used by the relay executor.
type Submitter interface {
	// EstimateClaimGas estimates the execution cost of a relayed claim.
	EstimateClaimGas(ctx context.Context, recipient common.Address, tokenID domain.TokenID, text string) (uint64, error)

	// SubmitRelayClaim submits the relayed claim with the given gas limit.
	SubmitRelayClaim(ctx context.Context, recipient common.Address, tokenID domain.TokenID, text string, gasLimit uint64) (*Submission, error)

	// WaitConfirmed blocks until the submission reaches finality or ctx ends.
	WaitConfirmed(ctx context.Context, txHash common.Hash) error
}

// Admin is the privileged owner surface, used by adminctl.
type Admin interface {
	Deposit(ctx context.Context, ids []domain.TokenID) error
	Withdraw(ctx context.Context, ids []domain.TokenID, to common.Address) error
	EmergencyWithdrawAll(ctx context.Context, to common.Address) error
	SetAuthority(ctx context.Context, newAuthority common.Address) error
	ResetClaimStatus(ctx context.Context, claimant common.Address) error
	ResetNonce(ctx context.Context, claimant common.Address, value uint64) error
	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
}
