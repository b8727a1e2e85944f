package signing

import "errors"

// Error surface for the Signature Verifier.
var (
	ErrBadSignature     = errors.New("signing: bad signature")
	ErrUnsupportedChain = errors.New("signing: unsupported chain")
	ErrMalformedEncoding = errors.New("signing: malformed encoding")
)
