package ledger_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/ledger"
	"github.com/halide-works/aperture-drop/internal/pool"
)

var (
	owner = common.HexToAddress("0x1000000000000000000000000000000000000001")
	alice = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func newEmbedded(t *testing.T) *ledger.Embedded {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	authority := crypto.PubkeyToAddress(key.PublicKey)

	p := pool.New(pool.Config{
		Owner:       owner,
		Authority:   authority,
		PoolAccount: common.HexToAddress("0x2000000000000000000000000000000000000002"),
	})
	return ledger.NewEmbedded(p, authority, owner)
}

func TestEmbedded_Reads(t *testing.T) {
	ctx := context.Background()
	e := newEmbedded(t)

	require.NoError(t, e.Deposit(ctx, []domain.TokenID{1, 2, 3}))

	available, err := e.AvailableTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.TokenID{1, 2, 3}, available)

	ok, err := e.IsTokenAvailable(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.IsTokenAvailable(ctx, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	claimed, err := e.HasClaimed(ctx, alice)
	require.NoError(t, err)
	assert.False(t, claimed)

	nonce, err := e.Nonce(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, nonce)

	deposited, err := e.DepositedBitmap(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b111), deposited.Uint64())
}

func TestEmbedded_SubmitRelayClaim(t *testing.T) {
	ctx := context.Background()
	e := newEmbedded(t)
	require.NoError(t, e.Deposit(ctx, []domain.TokenID{1, 2}))

	t.Run("claim applies synchronously", func(t *testing.T) {
		sub, err := e.SubmitRelayClaim(ctx, alice, 1, "an observation", 0)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.NotEqual(t, common.Hash{}, sub.TxHash)

		// Confirmation is immediate.
		assert.NoError(t, e.WaitConfirmed(ctx, sub.TxHash))

		claimed, err := e.HasClaimed(ctx, alice)
		require.NoError(t, err)
		assert.True(t, claimed)

		events, err := e.ObservationEvents(ctx)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "an observation", events[0].Text)
	})

	t.Run("pool errors pass through", func(t *testing.T) {
		_, err := e.SubmitRelayClaim(ctx, alice, 2, "again", 0)
		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	})

	t.Run("synthetic hashes are distinct", func(t *testing.T) {
		bob := common.HexToAddress("0x4000000000000000000000000000000000000004")
		sub, err := e.SubmitRelayClaim(ctx, bob, 2, "another", 0)
		require.NoError(t, err)

		carol := common.HexToAddress("0x5000000000000000000000000000000000000005")
		require.NoError(t, e.Deposit(ctx, []domain.TokenID{3}))
		sub2, err := e.SubmitRelayClaim(ctx, carol, 3, "third", 0)
		require.NoError(t, err)

		assert.NotEqual(t, sub.TxHash, sub2.TxHash)
	})
}

func TestEmbedded_EstimateClaimGas(t *testing.T) {
	e := newEmbedded(t)
	gas, err := e.EstimateClaimGas(context.Background(), alice, 1, "text")
	require.NoError(t, err)
	assert.Greater(t, gas, uint64(0))
}

func TestEmbedded_Admin(t *testing.T) {
	ctx := context.Background()
	e := newEmbedded(t)
	require.NoError(t, e.Deposit(ctx, []domain.TokenID{1, 2}))

	t.Run("withdraw", func(t *testing.T) {
		require.NoError(t, e.Withdraw(ctx, []domain.TokenID{1}, alice))
		ok, err := e.IsTokenAvailable(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("pause and unpause", func(t *testing.T) {
		require.NoError(t, e.Pause(ctx))
		_, err := e.SubmitRelayClaim(ctx, alice, 2, "while paused", 0)
		assert.ErrorIs(t, err, domain.ErrPaused)
		require.NoError(t, e.Unpause(ctx))
	})

	t.Run("emergency withdrawal drains under pause", func(t *testing.T) {
		require.NoError(t, e.Pause(ctx))
		require.NoError(t, e.EmergencyWithdrawAll(ctx, alice))
		require.NoError(t, e.Unpause(ctx))

		available, err := e.AvailableTokens(ctx)
		require.NoError(t, err)
		assert.Empty(t, available)
	})

	t.Run("reset nonce and claim status", func(t *testing.T) {
		require.NoError(t, e.ResetNonce(ctx, alice, 7))
		nonce, err := e.Nonce(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), nonce)

		require.NoError(t, e.ResetClaimStatus(ctx, alice))
		claimed, err := e.HasClaimed(ctx, alice)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("set authority", func(t *testing.T) {
		next := common.HexToAddress("0x6000000000000000000000000000000000000006")
		require.NoError(t, e.SetAuthority(ctx, next))
		assert.Equal(t, next, e.Pool().Authority())
	})
}
