package pool

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/halide-works/aperture-drop/internal/domain"
)

// ClaimDigest builds the digest a claim authorization signs: the keccak256
// of the packed (claimant, tokenID, text, nonce) tuple, wrapped with the
// standard Ethereum signed-message prefix. The nonce binds each signature
// to one use.
func ClaimDigest(claimant common.Address, tokenID domain.TokenID, text string, nonce uint64) common.Hash {
	packed := make([]byte, 0, common.AddressLength+2+len(text)+8)
	packed = append(packed, claimant.Bytes()...)

	var idBytes [2]byte
	binary.BigEndian.PutUint16(idBytes[:], uint16(tokenID))
	packed = append(packed, idBytes[:]...)

	packed = append(packed, []byte(text)...)

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	packed = append(packed, nonceBytes[:]...)

	inner := crypto.Keccak256(packed)
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(inner))
	return crypto.Keccak256Hash([]byte(prefixed), inner)
}

// Authority holds the trusted signing key. It signs claim authorizations
// after off-chain evaluation and identifies the relayer account.
type Authority struct {
	key *ecdsa.PrivateKey
}

// NewAuthority creates an Authority from a hex-encoded secp256k1 private key.
func NewAuthority(hexKey string) (*Authority, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authority key: %w", err)
	}
	return &Authority{key: key}, nil
}

// NewAuthorityFromKey wraps an existing private key.
func NewAuthorityFromKey(key *ecdsa.PrivateKey) *Authority {
	return &Authority{key: key}
}

// Address returns the authority's account address.
func (a *Authority) Address() common.Address {
	return crypto.PubkeyToAddress(a.key.PublicKey)
}

// Key returns the underlying private key, for transaction signing.
func (a *Authority) Key() *ecdsa.PrivateKey {
	return a.key
}

// SignClaim produces a 65-byte [R || S || V] signature over the claim digest.
func (a *Authority) SignClaim(claimant common.Address, tokenID domain.TokenID, text string, nonce uint64) ([]byte, error) {
	digest := ClaimDigest(claimant, tokenID, text, nonce)
	sig, err := crypto.Sign(digest.Bytes(), a.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign claim: %w", err)
	}
	return sig, nil
}

// Ticket issues a self-contained authorization artifact for the direct path.
func (a *Authority) Ticket(claimant common.Address, tokenID domain.TokenID, text string, nonce uint64) (domain.ClaimTicket, error) {
	sig, err := a.SignClaim(claimant, tokenID, text, nonce)
	if err != nil {
		return domain.ClaimTicket{}, err
	}
	return domain.ClaimTicket{
		Claimant:  claimant,
		TokenID:   tokenID,
		Text:      text,
		Nonce:     nonce,
		Signature: common.Bytes2Hex(sig),
	}, nil
}

// RecoverSigner recovers the signing address from a digest and a 65-byte
// signature. Both 0/1 and 27/28 recovery ids are accepted.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}

	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
