// Package wallet verifies that a consent message was signed by the wallet that claims it.
// Solana wallets sign with ed25519 over the raw message; EVM wallets use personal_sign.
package wallet

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidAddress is returned when a wallet address cannot be decoded for its chain.
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrInvalidSignature is returned when a signature is malformed or does not match.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnsupportedChain is returned for chains other than solana and evm.
	ErrUnsupportedChain = errors.New("unsupported chain")
)

// Verify checks signature over message for the given chain and wallet address.
func Verify(chain, address, message, signature string) error {
	switch strings.ToLower(chain) {
	case "solana":
		return VerifySolana(address, message, signature)
	case "evm":
		return VerifyEVM(address, message, signature)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedChain, chain)
	}
}
