package admission

import "errors"

// Validation, authorization, and business error surface for order admission.
var (
	ErrInvalidPrice        = errors.New("admission: invalid price")
	ErrInvalidQuantity     = errors.New("admission: invalid quantity")
	ErrUnauthorized        = errors.New("admission: unauthorized")
	ErrMarketClosed        = errors.New("admission: market closed")
	ErrInsufficientFunds   = errors.New("admission: insufficient funds")
	ErrInsufficientTokens  = errors.New("admission: insufficient tokens")
)
