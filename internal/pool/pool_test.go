package pool_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/pool"
)

var (
	owner       = common.HexToAddress("0x1000000000000000000000000000000000000001")
	poolAccount = common.HexToAddress("0x2000000000000000000000000000000000000002")
	alice       = common.HexToAddress("0x3000000000000000000000000000000000000003")
	bob         = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

func newTestAuthority(t *testing.T) *pool.Authority {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return pool.NewAuthorityFromKey(key)
}

func newTestPool(t *testing.T, transfer pool.TransferFunc) (*pool.ClaimPool, *pool.Authority) {
	t.Helper()
	authority := newTestAuthority(t)
	p := pool.New(pool.Config{
		Owner:       owner,
		Authority:   authority.Address(),
		PoolAccount: poolAccount,
		Transfer:    transfer,
	})
	return p, authority
}

func depositAll(t *testing.T, p *pool.ClaimPool) {
	t.Helper()
	ids := make([]domain.TokenID, 0, domain.MaxSupply)
	for id := domain.TokenID(1); id <= domain.MaxSupply; id++ {
		ids = append(ids, id)
	}
	require.NoError(t, p.Deposit(owner, ids))
}

func TestClaimPool_Deposit(t *testing.T) {
	t.Run("deposited tokens become available", func(t *testing.T) {
		p, _ := newTestPool(t, nil)

		assert.False(t, p.IsTokenAvailable(1))
		require.NoError(t, p.Deposit(owner, []domain.TokenID{1, 2, 3}))

		assert.True(t, p.IsTokenAvailable(1))
		assert.True(t, p.IsTokenAvailable(3))
		assert.False(t, p.IsTokenAvailable(4))
		assert.Equal(t, []domain.TokenID{1, 2, 3}, p.AvailableTokens())
		assert.Equal(t, poolAccount, p.HolderOf(1))
	})

	t.Run("only the owner may deposit", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		assert.ErrorIs(t, p.Deposit(alice, []domain.TokenID{1}), domain.ErrNotOwner)
	})

	t.Run("out of range ids are rejected", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		assert.ErrorIs(t, p.Deposit(owner, []domain.TokenID{0}), domain.ErrInvalidTokenID)
		assert.ErrorIs(t, p.Deposit(owner, []domain.TokenID{domain.MaxSupply + 1}), domain.ErrInvalidTokenID)
	})

	t.Run("claimed tokens cannot be re-deposited", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)
		require.NoError(t, p.RelayClaim(authority.Address(), alice, 7, "a fine observation"))

		assert.ErrorIs(t, p.Deposit(owner, []domain.TokenID{7}), domain.ErrAlreadyClaimed)
	})
}

func TestClaimPool_Withdraw(t *testing.T) {
	t.Run("withdrawn tokens leave the pool", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		require.NoError(t, p.Deposit(owner, []domain.TokenID{1, 2}))

		require.NoError(t, p.Withdraw(owner, []domain.TokenID{1}, bob))

		assert.False(t, p.IsTokenAvailable(1))
		assert.True(t, p.IsTokenAvailable(2))
		assert.Equal(t, bob, p.HolderOf(1))
	})

	t.Run("zero recipient is rejected", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		require.NoError(t, p.Deposit(owner, []domain.TokenID{1}))
		assert.ErrorIs(t, p.Withdraw(owner, []domain.TokenID{1}, common.Address{}), domain.ErrZeroRecipient)
	})

	t.Run("only the owner may withdraw", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		require.NoError(t, p.Deposit(owner, []domain.TokenID{1}))
		assert.ErrorIs(t, p.Withdraw(alice, []domain.TokenID{1}, alice), domain.ErrNotOwner)
	})

	t.Run("claimed tokens cannot be withdrawn from their claimant", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)
		require.NoError(t, p.RelayClaim(authority.Address(), alice, 9, "hers now"))

		assert.ErrorIs(t, p.Withdraw(owner, []domain.TokenID{9}, bob), domain.ErrAlreadyClaimed)
		assert.Equal(t, alice, p.HolderOf(9))
	})

	t.Run("one claimed id rejects the whole batch", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)
		require.NoError(t, p.RelayClaim(authority.Address(), alice, 9, "hers now"))

		assert.ErrorIs(t, p.Withdraw(owner, []domain.TokenID{8, 9}, bob), domain.ErrAlreadyClaimed)
		assert.True(t, p.IsTokenAvailable(8))
		assert.Equal(t, alice, p.HolderOf(9))
	})
}

func TestClaimPool_Claim(t *testing.T) {
	t.Run("valid signature claims the token", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)

		sig, err := authority.SignClaim(alice, 42, "a quiet street at dusk", 0)
		require.NoError(t, err)

		require.NoError(t, p.Claim(alice, 42, "a quiet street at dusk", sig))

		assert.True(t, p.HasClaimed(alice))
		assert.False(t, p.IsTokenAvailable(42))
		assert.Equal(t, alice, p.HolderOf(42))
		assert.Equal(t, uint64(1), p.Nonce(alice))

		events := p.ObservationEvents()
		require.Len(t, events, 1)
		assert.Equal(t, domain.TokenID(42), events[0].TokenID)
		assert.Equal(t, "a quiet street at dusk", events[0].Text)
		assert.Equal(t, alice, events[0].Author)
		assert.Equal(t, uint64(1), events[0].Seq)
	})

	t.Run("verbatim replay is rejected as stale nonce", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)

		sig, err := authority.SignClaim(alice, 1, "first light", 0)
		require.NoError(t, err)
		require.NoError(t, p.Claim(alice, 1, "first light", sig))

		// The latch trips first; clear it so the replay reaches the
		// signature check.
		require.NoError(t, p.ResetClaimStatus(owner, alice))
		assert.ErrorIs(t, p.Claim(alice, 2, "first light", sig), domain.ErrBadSignature)
		assert.ErrorIs(t, p.Claim(alice, 1, "first light", sig), domain.ErrTokenUnavailable)

		sig2, err := authority.SignClaim(alice, 2, "first light", 0)
		require.NoError(t, err)
		assert.ErrorIs(t, p.Claim(alice, 2, "first light", sig2), domain.ErrStaleNonce)
	})

	t.Run("signature from the wrong key is rejected", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		depositAll(t, p)

		impostor := newTestAuthority(t)
		sig, err := impostor.SignClaim(alice, 1, "forged", 0)
		require.NoError(t, err)

		assert.ErrorIs(t, p.Claim(alice, 1, "forged", sig), domain.ErrBadSignature)
		assert.Equal(t, uint64(0), p.Nonce(alice))
		assert.False(t, p.HasClaimed(alice))
	})

	t.Run("one claim per claimant", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)

		sig, err := authority.SignClaim(alice, 1, "one", 0)
		require.NoError(t, err)
		require.NoError(t, p.Claim(alice, 1, "one", sig))

		sig2, err := authority.SignClaim(alice, 2, "two", 1)
		require.NoError(t, err)
		assert.ErrorIs(t, p.Claim(alice, 2, "two", sig2), domain.ErrAlreadyClaimed)
	})

	t.Run("text length bounds", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)

		long := make([]byte, domain.MaxObservationLength+1)
		for i := range long {
			long[i] = 'x'
		}

		sig, err := authority.SignClaim(alice, 1, "", 0)
		require.NoError(t, err)
		assert.ErrorIs(t, p.Claim(alice, 1, "", sig), domain.ErrTextLength)

		sig, err = authority.SignClaim(alice, 1, string(long), 0)
		require.NoError(t, err)
		assert.ErrorIs(t, p.Claim(alice, 1, string(long), sig), domain.ErrTextLength)
	})

	t.Run("undeposited token is unavailable", func(t *testing.T) {
		p, authority := newTestPool(t, nil)

		sig, err := authority.SignClaim(alice, 1, "too early", 0)
		require.NoError(t, err)
		assert.ErrorIs(t, p.Claim(alice, 1, "too early", sig), domain.ErrTokenUnavailable)
	})

	t.Run("paused pool rejects claims", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)
		require.NoError(t, p.Pause(owner))

		sig, err := authority.SignClaim(alice, 1, "while paused", 0)
		require.NoError(t, err)
		assert.ErrorIs(t, p.Claim(alice, 1, "while paused", sig), domain.ErrPaused)

		require.NoError(t, p.Unpause(owner))
		assert.NoError(t, p.Claim(alice, 1, "while paused", sig))
	})
}

func TestClaimPool_RelayClaim(t *testing.T) {
	t.Run("authority claims on behalf of recipient", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)

		require.NoError(t, p.RelayClaim(authority.Address(), alice, 5, "relayed"))

		assert.True(t, p.HasClaimed(alice))
		assert.Equal(t, alice, p.HolderOf(5))
	})

	t.Run("non-authority callers are rejected", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		depositAll(t, p)

		assert.ErrorIs(t, p.RelayClaim(alice, alice, 5, "self-relay"), domain.ErrNotAuthority)
		assert.ErrorIs(t, p.RelayClaim(owner, alice, 5, "owner-relay"), domain.ErrNotAuthority)
	})

	t.Run("recipient latch applies on the relay path", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)

		require.NoError(t, p.RelayClaim(authority.Address(), alice, 5, "first"))
		assert.ErrorIs(t, p.RelayClaim(authority.Address(), alice, 6, "second"), domain.ErrAlreadyClaimed)
	})
}

func TestClaimPool_ConcurrentClaims(t *testing.T) {
	t.Run("one token goes to exactly one claimant", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)

		const claimants = 32
		var wg sync.WaitGroup
		results := make([]error, claimants)

		for i := 0; i < claimants; i++ {
			claimant := common.BigToAddress(common.Big1)
			claimant[0] = byte(i + 1)
			sig, err := authority.SignClaim(claimant, 42, "contested", 0)
			require.NoError(t, err)

			wg.Add(1)
			go func(i int, claimant common.Address, sig []byte) {
				defer wg.Done()
				results[i] = p.Claim(claimant, 42, "contested", sig)
			}(i, claimant, sig)
		}
		wg.Wait()

		var won int
		for _, err := range results {
			if err == nil {
				won++
			} else {
				assert.ErrorIs(t, err, domain.ErrTokenUnavailable)
			}
		}
		assert.Equal(t, 1, won)
		assert.Len(t, p.ObservationEvents(), 1)
	})

	t.Run("same claimant cannot double-spend a nonce", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)

		const attempts = 16
		var wg sync.WaitGroup
		results := make([]error, attempts)

		for i := 0; i < attempts; i++ {
			id := domain.TokenID(i + 1)
			sig, err := authority.SignClaim(alice, id, "racing", 0)
			require.NoError(t, err)

			wg.Add(1)
			go func(i int, id domain.TokenID, sig []byte) {
				defer wg.Done()
				results[i] = p.Claim(alice, id, "racing", sig)
			}(i, id, sig)
		}
		wg.Wait()

		var won int
		for _, err := range results {
			if err == nil {
				won++
			}
		}
		assert.Equal(t, 1, won)
		assert.Equal(t, uint64(1), p.Nonce(alice))
	})
}

func TestClaimPool_TransferHook(t *testing.T) {
	t.Run("transfer failure rolls back the claim", func(t *testing.T) {
		hookErr := errors.New("custody move failed")
		p, authority := newTestPool(t, func(tokenID domain.TokenID, from, to common.Address) error {
			return hookErr
		})
		depositAll(t, p)

		sig, err := authority.SignClaim(alice, 9, "doomed", 0)
		require.NoError(t, err)

		assert.ErrorIs(t, p.Claim(alice, 9, "doomed", sig), hookErr)

		assert.False(t, p.HasClaimed(alice))
		assert.True(t, p.IsTokenAvailable(9))
		assert.Equal(t, uint64(0), p.Nonce(alice))
		assert.Empty(t, p.ObservationEvents())
	})

	t.Run("rolled back signature can be retried", func(t *testing.T) {
		fail := true
		p, authority := newTestPool(t, func(tokenID domain.TokenID, from, to common.Address) error {
			if fail {
				return errors.New("transient")
			}
			return nil
		})
		depositAll(t, p)

		sig, err := authority.SignClaim(alice, 9, "retried", 0)
		require.NoError(t, err)

		require.Error(t, p.Claim(alice, 9, "retried", sig))
		fail = false
		require.NoError(t, p.Claim(alice, 9, "retried", sig))
		assert.True(t, p.HasClaimed(alice))
	})

	t.Run("reentrant claim through the hook is rejected as unavailable", func(t *testing.T) {
		var p *pool.ClaimPool
		var authority *pool.Authority
		var reentrantErr error

		p, authority = newTestPool(t, func(tokenID domain.TokenID, from, to common.Address) error {
			reentrantErr = p.RelayClaim(authority.Address(), bob, 2, "reentrant")
			return nil
		})
		depositAll(t, p)

		require.NoError(t, p.RelayClaim(authority.Address(), alice, 1, "outer"))
		assert.ErrorIs(t, reentrantErr, domain.ErrTokenUnavailable)

		// The guard drops once the outer operation completes.
		assert.NoError(t, p.RelayClaim(authority.Address(), bob, 2, "after"))
	})

	t.Run("deposits during the hook are rejected", func(t *testing.T) {
		var p *pool.ClaimPool
		var authority *pool.Authority
		var depositErr error

		p, authority = newTestPool(t, func(tokenID domain.TokenID, from, to common.Address) error {
			depositErr = p.Deposit(owner, []domain.TokenID{50})
			return nil
		})
		require.NoError(t, p.Deposit(owner, []domain.TokenID{1}))

		require.NoError(t, p.RelayClaim(authority.Address(), alice, 1, "outer"))
		assert.ErrorIs(t, depositErr, pool.ErrReentrancy)
	})

	t.Run("hook observes the claimed bit already set", func(t *testing.T) {
		var availableDuringHook bool
		var p *pool.ClaimPool
		var authority *pool.Authority

		p, authority = newTestPool(t, func(tokenID domain.TokenID, from, to common.Address) error {
			availableDuringHook = p.IsTokenAvailable(tokenID)
			return nil
		})
		depositAll(t, p)

		require.NoError(t, p.RelayClaim(authority.Address(), alice, 3, "hooked"))
		assert.False(t, availableDuringHook)
	})
}

func TestClaimPool_Observations(t *testing.T) {
	t.Run("holder records one observation", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		require.NoError(t, p.Deposit(owner, []domain.TokenID{1, 2}))
		require.NoError(t, p.Withdraw(owner, []domain.TokenID{1}, alice))

		require.NoError(t, p.AddObservation(alice, 1, "held and observed"))
		assert.ErrorIs(t, p.AddObservation(alice, 1, "again"), domain.ErrObservationExists)
	})

	t.Run("non-holder is rejected", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		require.NoError(t, p.Deposit(owner, []domain.TokenID{1}))
		require.NoError(t, p.Withdraw(owner, []domain.TokenID{1}, alice))

		assert.ErrorIs(t, p.AddObservation(bob, 1, "not mine"), domain.ErrNotHolder)
	})

	t.Run("relay variant requires the authority", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		require.NoError(t, p.Deposit(owner, []domain.TokenID{1}))
		require.NoError(t, p.Withdraw(owner, []domain.TokenID{1}, alice))

		assert.ErrorIs(t, p.RelayAddObservation(bob, alice, 1, "spoofed"), domain.ErrNotAuthority)
		assert.NoError(t, p.RelayAddObservation(authority.Address(), alice, 1, "relayed note"))
	})

	t.Run("events keep emission order and dense seq", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)

		require.NoError(t, p.RelayClaim(authority.Address(), alice, 10, "first"))
		require.NoError(t, p.RelayClaim(authority.Address(), bob, 20, "second"))

		events := p.ObservationEvents()
		require.Len(t, events, 2)
		assert.Equal(t, uint64(1), events[0].Seq)
		assert.Equal(t, domain.TokenID(10), events[0].TokenID)
		assert.Equal(t, uint64(2), events[1].Seq)
		assert.Equal(t, domain.TokenID(20), events[1].TokenID)
	})
}

func TestClaimPool_Admin(t *testing.T) {
	t.Run("emergency withdrawal requires pause", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)
		require.NoError(t, p.RelayClaim(authority.Address(), alice, 1, "kept"))

		assert.ErrorIs(t, p.EmergencyWithdrawAll(owner, bob), domain.ErrNotPaused)

		require.NoError(t, p.Pause(owner))
		require.NoError(t, p.EmergencyWithdrawAll(owner, bob))

		// Claimed tokens stay with their claimant; the rest drain to bob.
		assert.Equal(t, alice, p.HolderOf(1))
		assert.Equal(t, bob, p.HolderOf(2))
		assert.Equal(t, bob, p.HolderOf(domain.MaxSupply))
		require.NoError(t, p.Unpause(owner))
		assert.Empty(t, p.AvailableTokens())
	})

	t.Run("set authority rotates the trusted signer", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		depositAll(t, p)

		next := newTestAuthority(t)
		assert.ErrorIs(t, p.SetAuthority(alice, next.Address()), domain.ErrNotOwner)
		assert.ErrorIs(t, p.SetAuthority(owner, common.Address{}), domain.ErrZeroRecipient)
		require.NoError(t, p.SetAuthority(owner, next.Address()))
		assert.Equal(t, next.Address(), p.Authority())

		sig, err := next.SignClaim(alice, 1, "new regime", 0)
		require.NoError(t, err)
		assert.NoError(t, p.Claim(alice, 1, "new regime", sig))
	})

	t.Run("reset claim status clears the latch", func(t *testing.T) {
		p, authority := newTestPool(t, nil)
		depositAll(t, p)

		require.NoError(t, p.RelayClaim(authority.Address(), alice, 1, "first"))
		assert.ErrorIs(t, p.RelayClaim(authority.Address(), alice, 2, "second"), domain.ErrAlreadyClaimed)

		assert.ErrorIs(t, p.ResetClaimStatus(alice, alice), domain.ErrNotOwner)
		require.NoError(t, p.ResetClaimStatus(owner, alice))
		assert.NoError(t, p.RelayClaim(authority.Address(), alice, 2, "second"))
	})

	t.Run("reset nonce overrides the counter", func(t *testing.T) {
		p, _ := newTestPool(t, nil)

		assert.ErrorIs(t, p.ResetNonce(alice, alice, 5), domain.ErrNotOwner)
		require.NoError(t, p.ResetNonce(owner, alice, 5))
		assert.Equal(t, uint64(5), p.Nonce(alice))
	})

	t.Run("pause is owner-only", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		assert.ErrorIs(t, p.Pause(alice), domain.ErrNotOwner)
		require.NoError(t, p.Pause(owner))
		assert.True(t, p.Paused())
		assert.ErrorIs(t, p.Unpause(alice), domain.ErrNotOwner)
		require.NoError(t, p.Unpause(owner))
		assert.False(t, p.Paused())
	})
}

func TestClaimPool_Bitmaps(t *testing.T) {
	p, authority := newTestPool(t, nil)
	require.NoError(t, p.Deposit(owner, []domain.TokenID{1, 2, 3}))
	require.NoError(t, p.RelayClaim(authority.Address(), alice, 2, "claimed"))

	deposited := p.DepositedBitmap()
	claimed := p.ClaimedBitmap()

	// Bit i-1 tracks token i.
	assert.Equal(t, uint64(0b111), deposited.Uint64())
	assert.Equal(t, uint64(0b010), claimed.Uint64())

	// Returned bitmaps are copies.
	deposited.Clear()
	assert.Equal(t, uint64(0b111), p.DepositedBitmap().Uint64())
}
