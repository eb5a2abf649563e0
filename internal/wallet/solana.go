package wallet

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// VerifySolana checks a base58 ed25519 signature against a base58 public key.
func VerifySolana(address, message, signature string) error {
	pub, err := base58.Decode(address)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}

	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: malformed solana signature", ErrInvalidSignature)
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig) {
		return fmt.Errorf("%w: signer does not match %s", ErrInvalidSignature, address)
	}
	return nil
}

// ValidSolanaAddress reports whether address decodes to a 32-byte public key.
func ValidSolanaAddress(address string) bool {
	pub, err := base58.Decode(address)
	return err == nil && len(pub) == ed25519.PublicKeySize
}
