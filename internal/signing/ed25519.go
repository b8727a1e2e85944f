package signing

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// verifyEd25519Solana implements the Ed25519/Solana-style scheme: wallet
// and signature are base58-encoded; the detached signature covers the raw
// canonical message bytes.
func verifyEd25519Solana(req Request) error {
	wallet, err := base58.Decode(req.WalletAddress)
	if err != nil {
		return fmt.Errorf("%w: wallet address: %v", ErrMalformedEncoding, err)
	}
	if len(wallet) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: wallet address is not a %d-byte ed25519 key", ErrMalformedEncoding, ed25519.PublicKeySize)
	}

	sig, err := base58.Decode(req.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrMalformedEncoding, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature is not %d bytes", ErrMalformedEncoding, ed25519.SignatureSize)
	}

	msg := CanonicalMessage(req)
	if !ed25519.Verify(ed25519.PublicKey(wallet), msg, sig) {
		return ErrBadSignature
	}
	return nil
}
