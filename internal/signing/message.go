// Package signing verifies that a signed order payload was authorized by
// the claimed wallet on the claimed chain, dispatching to one of two
// cryptographic schemes (Ed25519/Solana-style, Secp256k1/Cosmos ADR-36)
// by chain family, with a trust-without-verify escape hatch for
// development chains.
package signing

import "strings"

// Request carries everything needed to verify one order's signature.
type Request struct {
	ChainID          string
	MarketID         string
	UserID           string
	Side             string
	Price            string // preserved verbatim from the client's transport encoding
	Quantity         string
	TokenType        string
	WalletAddress    string
	Signature        string
	SessionPubKey    string // Cosmos-family only
	SessionAddress   string // Cosmos-family only
}

// CanonicalMessage builds the fixed-format string that every scheme signs:
// order:{marketId}:{userId}:{side}:{price}:{quantity}:{tokenType}
func CanonicalMessage(r Request) []byte {
	var b strings.Builder
	b.WriteString("order:")
	b.WriteString(r.MarketID)
	b.WriteString(":")
	b.WriteString(r.UserID)
	b.WriteString(":")
	b.WriteString(r.Side)
	b.WriteString(":")
	b.WriteString(r.Price)
	b.WriteString(":")
	b.WriteString(r.Quantity)
	b.WriteString(":")
	b.WriteString(r.TokenType)
	return []byte(b.String())
}
