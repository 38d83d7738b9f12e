package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds one trading wallet's secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// GenerateKey creates a new random wallet. Used by tests and tooling.
func GenerateKey() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newSigner(privateKey)
}

// FromPrivateKeyHex creates a Signer from a hex-encoded private key
// Format: "0x1234..." or "1234..." (64 hex chars)
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return newSigner(privateKey)
}

func newSigner(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

// Address returns the wallet address derived from the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the private key as hex string (WITHOUT 0x prefix)
// WARNING: Keep this secret! Never expose to users or logs
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(s.privateKey))
}

// Sign signs a 32-byte digest and returns [R || S || V] with V in {27, 28},
// the form the venue and wallets expect.
func (s *Signer) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}

	signature, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	signature[64] += 27

	return signature, nil
}

// SignHex is Sign with 0x-prefixed hex output.
func (s *Signer) SignHex(hash []byte) (string, error) {
	sig, err := s.Sign(hash)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// MatchesAddress reports whether addr (any case, with or without 0x)
// is this signer's wallet.
func (s *Signer) MatchesAddress(addr string) bool {
	if !common.IsHexAddress(addr) {
		return false
	}
	return common.HexToAddress(addr) == s.address
}

// RecoverAddress recovers the signer's address from a digest and a
// signature produced by Sign.
func RecoverAddress(hash []byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	if len(hash) != 32 {
		return common.Address{}, fmt.Errorf("invalid hash length: %d", len(hash))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	publicKeyBytes, err := crypto.Ecrecover(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	publicKey, err := crypto.UnmarshalPubkey(publicKeyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unmarshal public key: %w", err)
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

// VerifySignature reports whether signature over hash was made by address.
func VerifySignature(address common.Address, hash []byte, signature []byte) bool {
	recovered, err := RecoverAddress(hash, signature)
	if err != nil {
		return false
	}
	return recovered == address
}
