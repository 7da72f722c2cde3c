package pool

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/halide-works/aperture-drop/internal/adapter"
	"github.com/halide-works/aperture-drop/internal/domain"
)

// ErrReentrancy is returned when a deposit, withdrawal or observation write
// arrives while a custody transfer hook is still in flight. Claim paths
// report the condition as ErrTokenUnavailable instead, since for a claimant
// it is indistinguishable from the pool moving underneath them.
var ErrReentrancy = errors.New("custody transfer in flight")

// TransferFunc moves custody of a token between accounts. It runs after the
// pool state has been mutated, so a callback that re-enters the claim path
// finds the claimed bit already set.
type TransferFunc func(tokenID domain.TokenID, from, to common.Address) error

// ClaimPool is the claim-pool state machine: the authoritative record of
// which tokens are deposited, claimed and held, per-claimant nonces and
// has-claimed latches, and the append-only observation event log. Every
// operation executes atomically under one lock, matching the single-writer
// serialization of a ledger execution engine.
type ClaimPool struct {
	mu      sync.Mutex
	entered bool

	owner       common.Address
	authority   common.Address
	poolAccount common.Address
	paused      bool

	deposited *uint256.Int
	claimed   *uint256.Int
	holders   map[domain.TokenID]common.Address

	nonces     map[common.Address]uint64
	hasClaimed map[common.Address]bool

	observed map[domain.TokenID]bool
	events   []domain.ObservationEvent
	eventSeq uint64

	transfer TransferFunc
	clock    adapter.Clock
}

// Config configures a ClaimPool.
type Config struct {
	Owner       common.Address
	Authority   common.Address
	PoolAccount common.Address
	// Transfer is the custody-moving side effect. Nil means custody is
	// tracked in-pool only.
	Transfer TransferFunc
	Clock    adapter.Clock
}

// New creates an empty pool. Tokens start in the owner's custody,
// undeposited.
func New(cfg Config) *ClaimPool {
	p := &ClaimPool{
		owner:       cfg.Owner,
		authority:   cfg.Authority,
		poolAccount: cfg.PoolAccount,
		deposited:   uint256.NewInt(0),
		claimed:     uint256.NewInt(0),
		holders:     make(map[domain.TokenID]common.Address),
		nonces:      make(map[common.Address]uint64),
		hasClaimed:  make(map[common.Address]bool),
		observed:    make(map[domain.TokenID]bool),
		transfer:    cfg.Transfer,
		clock:       cfg.Clock,
	}
	if p.clock == nil {
		p.clock = adapter.NewClock()
	}
	for id := domain.TokenID(1); id <= domain.MaxSupply; id++ {
		p.holders[id] = cfg.Owner
	}
	return p
}

// Deposit moves custody of the given tokens from the owner to the pool and
// marks them deposited. Owner-only. Claimed tokens are never re-deposited.
func (p *ClaimPool) Deposit(caller common.Address, ids []domain.TokenID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.entered {
		return ErrReentrancy
	}
	if caller != p.owner {
		return domain.ErrNotOwner
	}
	if p.paused {
		return domain.ErrPaused
	}
	for _, id := range ids {
		if !id.Valid() {
			return domain.ErrInvalidTokenID
		}
		if hasBit(p.claimed, bitIndex(id)) {
			return domain.ErrAlreadyClaimed
		}
	}
	for _, id := range ids {
		setBit(p.deposited, bitIndex(id))
		p.holders[id] = p.poolAccount
	}
	return nil
}

// Withdraw returns custody of the given tokens to the recipient and clears
// their deposited bits. Owner-only; the zero recipient is rejected. Claimed
// tokens belong to their claimants and cannot be withdrawn; the only forced
// return path is EmergencyWithdrawAll, which skips them too.
func (p *ClaimPool) Withdraw(caller common.Address, ids []domain.TokenID, to common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.entered {
		return ErrReentrancy
	}
	if caller != p.owner {
		return domain.ErrNotOwner
	}
	if p.paused {
		return domain.ErrPaused
	}
	if to == (common.Address{}) {
		return domain.ErrZeroRecipient
	}
	for _, id := range ids {
		if !id.Valid() {
			return domain.ErrInvalidTokenID
		}
		if hasBit(p.claimed, bitIndex(id)) {
			return domain.ErrAlreadyClaimed
		}
	}
	for _, id := range ids {
		clearBit(p.deposited, bitIndex(id))
		p.holders[id] = to
	}
	return nil
}

// EmergencyWithdrawAll returns every unclaimed deposited token to the
// recipient. Owner-only, and only while the pool is paused.
func (p *ClaimPool) EmergencyWithdrawAll(caller common.Address, to common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.entered {
		return ErrReentrancy
	}
	if caller != p.owner {
		return domain.ErrNotOwner
	}
	if !p.paused {
		return domain.ErrNotPaused
	}
	if to == (common.Address{}) {
		return domain.ErrZeroRecipient
	}
	for id := domain.TokenID(1); id <= domain.MaxSupply; id++ {
		i := bitIndex(id)
		if hasBit(p.deposited, i) && !hasBit(p.claimed, i) {
			clearBit(p.deposited, i)
			p.holders[id] = to
		}
	}
	return nil
}

// isAvailable reports deposited AND not claimed AND pool custody.
// Caller must hold the lock.
func (p *ClaimPool) isAvailable(id domain.TokenID) bool {
	i := bitIndex(id)
	return hasBit(p.deposited, i) && !hasBit(p.claimed, i) && p.holders[id] == p.poolAccount
}

// Claim executes a direct-path claim. The validation order is part of the
// contract: already-claimed, text length, availability, signature, then
// nonce increment strictly before the custody transfer.
func (p *ClaimPool) Claim(caller common.Address, tokenID domain.TokenID, text string, signature []byte) error {
	p.mu.Lock()

	if p.entered {
		p.mu.Unlock()
		return domain.ErrTokenUnavailable
	}
	if p.paused {
		p.mu.Unlock()
		return domain.ErrPaused
	}
	if !tokenID.Valid() {
		p.mu.Unlock()
		return domain.ErrInvalidTokenID
	}
	if p.hasClaimed[caller] {
		p.mu.Unlock()
		return domain.ErrAlreadyClaimed
	}
	if !domain.ValidObservationText(text) {
		p.mu.Unlock()
		return domain.ErrTextLength
	}
	if !p.isAvailable(tokenID) {
		p.mu.Unlock()
		return domain.ErrTokenUnavailable
	}

	nonce := p.nonces[caller]
	if err := p.verifySignature(caller, tokenID, text, nonce, signature); err != nil {
		p.mu.Unlock()
		return err
	}

	// Consume the nonce before any external transfer: a second concurrent
	// submission with the same signature now fails verification.
	p.nonces[caller] = nonce + 1

	p.finishClaim(caller, tokenID, text)
	return p.runTransfer(tokenID, caller, func() {
		// Rollback on transfer failure; the operation is atomic.
		p.nonces[caller] = nonce
	})
}

// RelayClaim executes a gasless claim on behalf of recipient. Only the
// trusted authority may call it; the authorization is the caller identity.
func (p *ClaimPool) RelayClaim(caller, recipient common.Address, tokenID domain.TokenID, text string) error {
	p.mu.Lock()

	if p.entered {
		p.mu.Unlock()
		return domain.ErrTokenUnavailable
	}
	if caller != p.authority {
		p.mu.Unlock()
		return domain.ErrNotAuthority
	}
	if p.paused {
		p.mu.Unlock()
		return domain.ErrPaused
	}
	if !tokenID.Valid() {
		p.mu.Unlock()
		return domain.ErrInvalidTokenID
	}
	if p.hasClaimed[recipient] {
		p.mu.Unlock()
		return domain.ErrAlreadyClaimed
	}
	if !domain.ValidObservationText(text) {
		p.mu.Unlock()
		return domain.ErrTextLength
	}
	if !p.isAvailable(tokenID) {
		p.mu.Unlock()
		return domain.ErrTokenUnavailable
	}

	p.finishClaim(recipient, tokenID, text)
	return p.runTransfer(tokenID, recipient, nil)
}

// finishClaim applies the claim mutations. Caller must hold the lock.
func (p *ClaimPool) finishClaim(recipient common.Address, tokenID domain.TokenID, text string) {
	setBit(p.claimed, bitIndex(tokenID))
	p.hasClaimed[recipient] = true
	p.holders[tokenID] = recipient
	p.appendObservation(tokenID, text, recipient)
}

// runTransfer invokes the transfer hook outside the lock with the
// reentrancy guard raised, rolling back the claim mutations on failure.
// Caller must hold the lock; it is released on return.
func (p *ClaimPool) runTransfer(tokenID domain.TokenID, recipient common.Address, extraRollback func()) error {
	if p.transfer == nil {
		p.mu.Unlock()
		return nil
	}

	p.entered = true
	hook := p.transfer
	p.mu.Unlock()

	err := hook(tokenID, p.poolAccount, recipient)

	p.mu.Lock()
	p.entered = false
	if err != nil {
		clearBit(p.claimed, bitIndex(tokenID))
		delete(p.hasClaimed, recipient)
		p.holders[tokenID] = p.poolAccount
		p.dropObservation(tokenID)
		if extraRollback != nil {
			extraRollback()
		}
	}
	p.mu.Unlock()
	return err
}

// verifySignature checks that signature recovers to the authority over the
// current nonce. A signature valid for the previous nonce is reported as a
// replay. Caller must hold the lock.
func (p *ClaimPool) verifySignature(claimant common.Address, tokenID domain.TokenID, text string, nonce uint64, signature []byte) error {
	signer, err := RecoverSigner(ClaimDigest(claimant, tokenID, text, nonce), signature)
	if err == nil && signer == p.authority {
		return nil
	}

	if nonce > 0 {
		prev, prevErr := RecoverSigner(ClaimDigest(claimant, tokenID, text, nonce-1), signature)
		if prevErr == nil && prev == p.authority {
			return domain.ErrStaleNonce
		}
	}
	return domain.ErrBadSignature
}

// AddObservation records an observation for a token the caller already
// holds. No transfer occurs, and a token carries at most one observation.
func (p *ClaimPool) AddObservation(caller common.Address, tokenID domain.TokenID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addObservation(caller, tokenID, text)
}

// RelayAddObservation is the authority-only variant of AddObservation,
// recording on behalf of the current holder.
func (p *ClaimPool) RelayAddObservation(caller, holder common.Address, tokenID domain.TokenID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.authority {
		return domain.ErrNotAuthority
	}
	return p.addObservation(holder, tokenID, text)
}

func (p *ClaimPool) addObservation(holder common.Address, tokenID domain.TokenID, text string) error {
	if p.entered {
		return ErrReentrancy
	}
	if p.paused {
		return domain.ErrPaused
	}
	if !tokenID.Valid() {
		return domain.ErrInvalidTokenID
	}
	if !domain.ValidObservationText(text) {
		return domain.ErrTextLength
	}
	if p.holders[tokenID] != holder {
		return domain.ErrNotHolder
	}
	if p.observed[tokenID] {
		return domain.ErrObservationExists
	}
	p.appendObservation(tokenID, text, holder)
	return nil
}

// appendObservation emits an observation event. Caller must hold the lock.
func (p *ClaimPool) appendObservation(tokenID domain.TokenID, text string, author common.Address) {
	p.eventSeq++
	p.observed[tokenID] = true
	p.events = append(p.events, domain.ObservationEvent{
		Seq:       p.eventSeq,
		TokenID:   tokenID,
		Text:      text,
		Author:    author,
		Timestamp: p.clock.Now(),
	})
}

// dropObservation removes the latest event for a token during rollback.
// Caller must hold the lock.
func (p *ClaimPool) dropObservation(tokenID domain.TokenID) {
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].TokenID == tokenID {
			p.events = append(p.events[:i], p.events[i+1:]...)
			break
		}
	}
	delete(p.observed, tokenID)
}

// SetAuthority rotates the trusted authority address. Owner-only.
func (p *ClaimPool) SetAuthority(caller, newAuthority common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.owner {
		return domain.ErrNotOwner
	}
	if newAuthority == (common.Address{}) {
		return domain.ErrZeroRecipient
	}
	p.authority = newAuthority
	return nil
}

// ResetClaimStatus clears a claimant's has-claimed latch. Owner-only.
func (p *ClaimPool) ResetClaimStatus(caller, claimant common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.owner {
		return domain.ErrNotOwner
	}
	delete(p.hasClaimed, claimant)
	return nil
}

// ResetNonce overrides a claimant's nonce. Owner-only.
func (p *ClaimPool) ResetNonce(caller, claimant common.Address, value uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.owner {
		return domain.ErrNotOwner
	}
	p.nonces[claimant] = value
	return nil
}

// Pause halts state-changing operations. Owner-only.
func (p *ClaimPool) Pause(caller common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.owner {
		return domain.ErrNotOwner
	}
	p.paused = true
	return nil
}

// Unpause resumes state-changing operations. Owner-only.
func (p *ClaimPool) Unpause(caller common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.owner {
		return domain.ErrNotOwner
	}
	p.paused = false
	return nil
}

// Paused reports whether the pool is paused.
func (p *ClaimPool) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Authority returns the current trusted authority address.
func (p *ClaimPool) Authority() common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authority
}

// IsTokenAvailable reports deposited AND not claimed AND pool custody.
func (p *ClaimPool) IsTokenAvailable(id domain.TokenID) bool {
	if !id.Valid() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isAvailable(id)
}

// AvailableTokens enumerates available ids with an O(N) bitmap scan.
func (p *ClaimPool) AvailableTokens() []domain.TokenID {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]domain.TokenID, 0, domain.MaxSupply)
	for id := domain.TokenID(1); id <= domain.MaxSupply; id++ {
		if p.isAvailable(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// AvailableCount returns the number of available tokens.
func (p *ClaimPool) AvailableCount() int {
	return len(p.AvailableTokens())
}

// Nonce returns the claimant's current nonce.
func (p *ClaimPool) Nonce(claimant common.Address) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nonces[claimant]
}

// HasClaimed reports whether the claimant has already claimed.
func (p *ClaimPool) HasClaimed(claimant common.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasClaimed[claimant]
}

// HolderOf returns the current holder of a token.
func (p *ClaimPool) HolderOf(id domain.TokenID) common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holders[id]
}

// ClaimedBitmap returns a copy of the claimed bitmap.
func (p *ClaimPool) ClaimedBitmap() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.claimed)
}

// DepositedBitmap returns a copy of the deposited bitmap.
func (p *ClaimPool) DepositedBitmap() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.deposited)
}

// ObservationEvents returns a snapshot of the append-only event log in
// emission order.
func (p *ClaimPool) ObservationEvents() []domain.ObservationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.ObservationEvent, len(p.events))
	copy(out, p.events)
	return out
}
