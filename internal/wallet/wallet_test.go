package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const message = "3f1c0b9e5d2a7f4e8c6b1a0d9e8f7c6b5a4d3e2f1a0b9c8d7e6f5a4b3c2d1e0f"

func TestVerifySolana(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	address := base58.Encode(pub)
	sig := base58.Encode(ed25519.Sign(priv, []byte(message)))

	assert.NoError(t, Verify("solana", address, message, sig))
	assert.True(t, ValidSolanaAddress(address))

	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	assert.ErrorIs(t, VerifySolana(base58.Encode(otherPub), message, sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySolana(address, "tampered", sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySolana(address, message, "not-base58-0OIl"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySolana("short", message, sig), ErrInvalidAddress)
	assert.False(t, ValidSolanaAddress("0x1234"))
}

func TestVerifyEVM(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	raw, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	raw[crypto.RecoveryIDOffset] += 27

	assert.NoError(t, Verify("EVM", address, message, hexutil.Encode(raw)))

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherAddr := crypto.PubkeyToAddress(other.PublicKey).Hex()
	assert.ErrorIs(t, VerifyEVM(otherAddr, message, hexutil.Encode(raw)), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyEVM(address, message, "0x1234"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyEVM("not-an-address", message, hexutil.Encode(raw)), ErrInvalidAddress)
}

func TestVerifyUnsupportedChain(t *testing.T) {
	assert.ErrorIs(t, Verify("bitcoin", "a", "b", "c"), ErrUnsupportedChain)
}
