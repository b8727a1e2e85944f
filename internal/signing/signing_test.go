package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"
)

func TestVerifyEd25519SolanaValid(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	req := Request{
		ChainID:   "solana",
		MarketID:  "m1",
		UserID:    "alice",
		Side:      "BUY",
		Price:     "0.50",
		Quantity:  "10",
		TokenType: "YES",
	}
	msg := CanonicalMessage(req)
	sig := ed25519.Sign(priv, msg)

	req.WalletAddress = base58.Encode(pub)
	req.Signature = base58.Encode(sig)

	if err := verifyEd25519Solana(req); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyEd25519SolanaTamperedMessageFails(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	req := Request{
		ChainID: "solana", MarketID: "m1", UserID: "alice",
		Side: "BUY", Price: "0.50", Quantity: "10", TokenType: "YES",
	}
	sig := ed25519.Sign(priv, CanonicalMessage(req))
	req.WalletAddress = base58.Encode(pub)
	req.Signature = base58.Encode(sig)

	req.Quantity = "11" // message changes, signature doesn't
	if err := verifyEd25519Solana(req); err == nil {
		t.Fatalf("expected signature verification to fail on tampered message")
	}
}

func TestVerifySecp256k1CosmosADR36Valid(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	pub := priv.PubKey()

	req := Request{
		ChainID:        "cosmoshub",
		MarketID:       "m1",
		UserID:         "bob",
		Side:           "SELL",
		Price:          "0.50",
		Quantity:       "5",
		TokenType:      "NO",
		SessionAddress: "cosmos1exampleaddress",
	}
	msg := CanonicalMessage(req)

	doc := adr36SignDoc{
		ChainID: "", AccountNumber: "0", Sequence: "0",
		Fee:  adr36Fee{Gas: "0", Amount: []interface{}{}},
		Memo: "",
		Msgs: []adr36SignMsg{{
			Type: "sign/MsgSignData",
			Value: adr36MsgBody{
				Signer: req.SessionAddress,
				Data:   base64.StdEncoding.EncodeToString(msg),
			},
		}},
	}
	docBytes, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal sign doc: %v", err)
	}
	hash := sha256.Sum256(docBytes)

	compact := ecdsa.SignCompact(priv, hash[:], false)
	sigBytes := compact[1:] // strip the recovery-id byte, keep raw (r,s)

	req.SessionPubKey = base64.StdEncoding.EncodeToString(pub.SerializeCompressed())
	req.Signature = base64.StdEncoding.EncodeToString(sigBytes)

	if err := verifySecp256k1CosmosADR36(req); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestRegistryTrustWithoutVerify(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ChainConfig{ChainID: "devnet", Scheme: SchemeTrustWithoutVerify})

	req := Request{ChainID: "devnet", Signature: "garbage", WalletAddress: "garbage"}
	if err := reg.Verify(req); err != nil {
		t.Fatalf("trust-without-verify chain should always pass, got %v", err)
	}
}

func TestRegistryUnsupportedChain(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Verify(Request{ChainID: "unknown"}); err == nil {
		t.Fatalf("expected ErrUnsupportedChain")
	}
}
