package relay_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halide-works/aperture-drop/internal/adapter"
	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/ledger"
	"github.com/halide-works/aperture-drop/internal/logger"
	"github.com/halide-works/aperture-drop/internal/mocks"
	"github.com/halide-works/aperture-drop/internal/pool"
	"github.com/halide-works/aperture-drop/internal/relay"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

var testOp = relay.Operation{
	Recipient: common.HexToAddress("0x3000000000000000000000000000000000000003"),
	TokenID:   42,
	Text:      "a quiet street at dusk",
}

type executorMocks struct {
	submitter *mocks.MockLedgerSubmitter
	reader    *mocks.MockLedgerReader
	authority *pool.Authority
	status    *relay.StatusStore
}

func setupExecutor(t *testing.T) (*relay.Executor, *executorMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	m := &executorMocks{
		submitter: mocks.NewMockLedgerSubmitter(ctrl),
		reader:    mocks.NewMockLedgerReader(ctrl),
		authority: pool.NewAuthorityFromKey(key),
		status:    relay.NewStatusStore(adapter.NewClock()),
	}

	e := relay.NewExecutor(m.submitter, m.reader, m.authority, m.status)
	t.Cleanup(e.Close)

	// No real sleeps between attempts.
	e.SetBackOffFactory(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	})
	return e, m
}

func TestExecutor_Submit_Confirmed(t *testing.T) {
	ctx := context.Background()

	t.Run("success with gas margin", func(t *testing.T) {
		e, m := setupExecutor(t)
		txHash := common.HexToHash("0xdeadbeef")

		m.submitter.EXPECT().
			EstimateClaimGas(ctx, testOp.Recipient, testOp.TokenID, testOp.Text).
			Return(uint64(100_000), nil)
		m.submitter.EXPECT().
			SubmitRelayClaim(ctx, testOp.Recipient, testOp.TokenID, testOp.Text, uint64(120_000)).
			Return(&ledger.Submission{TxHash: txHash}, nil)
		m.submitter.EXPECT().
			WaitConfirmed(ctx, txHash).
			Return(nil)

		result, err := e.Submit(ctx, testOp, relay.ModeConfirmed)
		require.NoError(t, err)
		assert.True(t, result.Confirmed)
		assert.Equal(t, txHash, result.TxHash)
		assert.NotEmpty(t, result.Handle)
		assert.Nil(t, result.FallbackTicket)

		st, ok := m.status.Get(result.Handle)
		require.True(t, ok)
		assert.Equal(t, relay.StateConfirmed, st.State)
	})

	t.Run("confirmation failure surfaces with the status", func(t *testing.T) {
		e, m := setupExecutor(t)
		txHash := common.HexToHash("0xdeadbeef")

		m.submitter.EXPECT().
			EstimateClaimGas(ctx, testOp.Recipient, testOp.TokenID, testOp.Text).
			Return(uint64(100_000), nil)
		m.submitter.EXPECT().
			SubmitRelayClaim(ctx, testOp.Recipient, testOp.TokenID, testOp.Text, gomock.Any()).
			Return(&ledger.Submission{TxHash: txHash}, nil)
		m.submitter.EXPECT().
			WaitConfirmed(ctx, txHash).
			Return(errors.New("reverted"))

		result, err := e.Submit(ctx, testOp, relay.ModeConfirmed)
		require.Error(t, err)
		assert.False(t, result.Confirmed)
		assert.Equal(t, txHash, result.TxHash)

		st, ok := m.status.Get(result.Handle)
		require.True(t, ok)
		assert.Equal(t, relay.StateFailed, st.State)
		assert.Contains(t, st.Error, "reverted")
	})
}

func TestExecutor_Submit_Optimistic(t *testing.T) {
	ctx := context.Background()

	t.Run("returns before finality and confirms in the background", func(t *testing.T) {
		e, m := setupExecutor(t)
		txHash := common.HexToHash("0xdeadbeef")

		m.submitter.EXPECT().
			EstimateClaimGas(ctx, testOp.Recipient, testOp.TokenID, testOp.Text).
			Return(uint64(100_000), nil)
		m.submitter.EXPECT().
			SubmitRelayClaim(ctx, testOp.Recipient, testOp.TokenID, testOp.Text, gomock.Any()).
			Return(&ledger.Submission{TxHash: txHash}, nil)
		m.submitter.EXPECT().
			WaitConfirmed(gomock.Any(), txHash).
			Return(nil)

		result, err := e.Submit(ctx, testOp, relay.ModeOptimistic)
		require.NoError(t, err)
		assert.False(t, result.Confirmed)
		assert.Equal(t, txHash, result.TxHash)

		assert.Eventually(t, func() bool {
			st, ok := m.status.Get(result.Handle)
			return ok && st.State == relay.StateConfirmed
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("background confirmation failure lands in the status store", func(t *testing.T) {
		e, m := setupExecutor(t)
		txHash := common.HexToHash("0xdeadbeef")

		m.submitter.EXPECT().
			EstimateClaimGas(ctx, testOp.Recipient, testOp.TokenID, testOp.Text).
			Return(uint64(100_000), nil)
		m.submitter.EXPECT().
			SubmitRelayClaim(ctx, testOp.Recipient, testOp.TokenID, testOp.Text, gomock.Any()).
			Return(&ledger.Submission{TxHash: txHash}, nil)
		m.submitter.EXPECT().
			WaitConfirmed(gomock.Any(), txHash).
			Return(errors.New("timed out"))

		result, err := e.Submit(ctx, testOp, relay.ModeOptimistic)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			st, ok := m.status.Get(result.Handle)
			return ok && st.State == relay.StateFailed
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestExecutor_Submit_Retries(t *testing.T) {
	ctx := context.Background()

	t.Run("transient failures retry then succeed once", func(t *testing.T) {
		e, m := setupExecutor(t)
		txHash := common.HexToHash("0xdeadbeef")
		transient := errors.New("rpc timeout")

		m.submitter.EXPECT().
			EstimateClaimGas(ctx, testOp.Recipient, testOp.TokenID, testOp.Text).
			Return(uint64(100_000), nil).
			Times(3)
		gomock.InOrder(
			m.submitter.EXPECT().
				SubmitRelayClaim(ctx, testOp.Recipient, testOp.TokenID, testOp.Text, gomock.Any()).
				Return(nil, transient),
			m.submitter.EXPECT().
				SubmitRelayClaim(ctx, testOp.Recipient, testOp.TokenID, testOp.Text, gomock.Any()).
				Return(nil, transient),
			m.submitter.EXPECT().
				SubmitRelayClaim(ctx, testOp.Recipient, testOp.TokenID, testOp.Text, gomock.Any()).
				Return(&ledger.Submission{TxHash: txHash}, nil),
		)
		m.submitter.EXPECT().WaitConfirmed(ctx, txHash).Return(nil)

		result, err := e.Submit(ctx, testOp, relay.ModeConfirmed)
		require.NoError(t, err)
		assert.True(t, result.Confirmed)
		assert.Nil(t, result.FallbackTicket)
	})

	t.Run("exhausted retries issue a fallback ticket", func(t *testing.T) {
		e, m := setupExecutor(t)
		transient := errors.New("rpc timeout")

		m.submitter.EXPECT().
			EstimateClaimGas(ctx, testOp.Recipient, testOp.TokenID, testOp.Text).
			Return(uint64(100_000), nil).
			Times(3)
		m.submitter.EXPECT().
			SubmitRelayClaim(ctx, testOp.Recipient, testOp.TokenID, testOp.Text, gomock.Any()).
			Return(nil, transient).
			Times(3)
		m.reader.EXPECT().
			Nonce(ctx, testOp.Recipient).
			Return(uint64(0), nil)

		result, err := e.Submit(ctx, testOp, relay.ModeConfirmed)
		require.ErrorIs(t, err, transient)
		require.NotNil(t, result.FallbackTicket)

		st, ok := m.status.Get(result.Handle)
		require.True(t, ok)
		assert.Equal(t, relay.StateFailed, st.State)
	})

	t.Run("terminal errors abort without retrying", func(t *testing.T) {
		e, m := setupExecutor(t)

		m.submitter.EXPECT().
			EstimateClaimGas(ctx, testOp.Recipient, testOp.TokenID, testOp.Text).
			Return(uint64(0), domain.ErrAlreadyClaimed).
			Times(1)
		m.reader.EXPECT().
			Nonce(ctx, testOp.Recipient).
			Return(uint64(0), nil)

		result, err := e.Submit(ctx, testOp, relay.ModeConfirmed)
		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
		assert.NotNil(t, result.FallbackTicket)
	})

	t.Run("insufficient funds is terminal", func(t *testing.T) {
		e, m := setupExecutor(t)

		m.submitter.EXPECT().
			EstimateClaimGas(ctx, testOp.Recipient, testOp.TokenID, testOp.Text).
			Return(uint64(100_000), nil).
			Times(1)
		m.submitter.EXPECT().
			SubmitRelayClaim(ctx, testOp.Recipient, testOp.TokenID, testOp.Text, gomock.Any()).
			Return(nil, domain.ErrInsufficientFunds).
			Times(1)
		m.reader.EXPECT().
			Nonce(ctx, testOp.Recipient).
			Return(uint64(0), nil)

		_, err := e.Submit(ctx, testOp, relay.ModeConfirmed)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})
}

func TestExecutor_FallbackTicket(t *testing.T) {
	ctx := context.Background()

	t.Run("ticket verifies against the authority over the current nonce", func(t *testing.T) {
		e, m := setupExecutor(t)

		m.submitter.EXPECT().
			EstimateClaimGas(ctx, testOp.Recipient, testOp.TokenID, testOp.Text).
			Return(uint64(0), domain.ErrPaused)
		m.reader.EXPECT().
			Nonce(ctx, testOp.Recipient).
			Return(uint64(4), nil)

		result, err := e.Submit(ctx, testOp, relay.ModeConfirmed)
		require.ErrorIs(t, err, domain.ErrPaused)
		require.NotNil(t, result.FallbackTicket)

		ticket := result.FallbackTicket
		assert.Equal(t, testOp.Recipient, ticket.Claimant)
		assert.Equal(t, testOp.TokenID, ticket.TokenID)
		assert.Equal(t, testOp.Text, ticket.Text)
		assert.Equal(t, uint64(4), ticket.Nonce)

		digest := pool.ClaimDigest(ticket.Claimant, ticket.TokenID, ticket.Text, ticket.Nonce)
		signer, err := pool.RecoverSigner(digest, common.Hex2Bytes(ticket.Signature))
		require.NoError(t, err)
		assert.Equal(t, m.authority.Address(), signer)
	})

	t.Run("failed nonce lookup reports both causes and no ticket", func(t *testing.T) {
		e, m := setupExecutor(t)

		m.submitter.EXPECT().
			EstimateClaimGas(ctx, testOp.Recipient, testOp.TokenID, testOp.Text).
			Return(uint64(0), domain.ErrPaused)
		m.reader.EXPECT().
			Nonce(ctx, testOp.Recipient).
			Return(uint64(0), assert.AnError)

		result, err := e.Submit(ctx, testOp, relay.ModeConfirmed)
		require.Error(t, err)
		assert.ErrorContains(t, err, "fallback nonce lookup failed")
		assert.Nil(t, result.FallbackTicket)
		assert.NotEmpty(t, result.Handle)
	})
}
