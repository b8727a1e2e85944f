package signing

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// adr36SignDoc is the minimal ADR-36 "offline sign-doc" shape used to wrap
// an arbitrary message for signing with a standard Cosmos SDK transaction
// signer (the "sign/MsgSignData" convention).
type adr36SignDoc struct {
	ChainID       string         `json:"chain_id"`
	AccountNumber string         `json:"account_number"`
	Sequence      string         `json:"sequence"`
	Fee           adr36Fee       `json:"fee"`
	Msgs          []adr36SignMsg `json:"msgs"`
	Memo          string         `json:"memo"`
}

type adr36Fee struct {
	Gas    string        `json:"gas"`
	Amount []interface{} `json:"amount"`
}

type adr36SignMsg struct {
	Type  string       `json:"type"`
	Value adr36MsgBody `json:"value"`
}

type adr36MsgBody struct {
	Signer string `json:"signer"`
	Data   string `json:"data"`
}

// verifySecp256k1CosmosADR36 implements the Secp256k1/Cosmos ADR-36
// scheme: session public key and signature are base64-encoded; the
// canonical message is wrapped in a fixed ADR-36 amino sign-doc,
// serialized, SHA-256'd, and verified as an (r,s) pair.
func verifySecp256k1CosmosADR36(req Request) error {
	pubKeyBytes, err := base64.StdEncoding.DecodeString(req.SessionPubKey)
	if err != nil {
		return fmt.Errorf("%w: session public key: %v", ErrMalformedEncoding, err)
	}
	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return fmt.Errorf("%w: session public key: %v", ErrMalformedEncoding, err)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrMalformedEncoding, err)
	}
	if len(sigBytes) != 64 {
		return fmt.Errorf("%w: signature is not a 64-byte (r,s) pair", ErrMalformedEncoding)
	}
	var r, s secp256k1.ModNScalar
	r.SetByteSlice(sigBytes[:32])
	s.SetByteSlice(sigBytes[32:])
	sig := ecdsa.NewSignature(&r, &s)

	msg := CanonicalMessage(req)
	doc := adr36SignDoc{
		ChainID:       "",
		AccountNumber: "0",
		Sequence:      "0",
		Fee:           adr36Fee{Gas: "0", Amount: []interface{}{}},
		Memo:          "",
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
		return fmt.Errorf("marshal ADR-36 sign doc: %w", err)
	}
	hash := sha256.Sum256(docBytes)

	if !sig.Verify(hash[:], pubKey) {
		return ErrBadSignature
	}
	return nil
}
