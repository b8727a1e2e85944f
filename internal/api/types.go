package api

// API request/response types for REST endpoints and WebSocket messages.

// ==============================
// REST Response Types
// ==============================

// MarketInfo represents a binary market's static configuration and
// resolution state.
type MarketInfo struct {
	ID             string `json:"id"`
	Question       string `json:"question"`
	Creator        string `json:"creator"`
	ResolutionTime int64  `json:"resolutionTime"` // Unix milliseconds
	Outcome        string `json:"outcome"`        // "UNRESOLVED", "YES", "NO"
	Settled        bool   `json:"settled"`
	CreatedAt      int64  `json:"createdAt"`
}

// OrderbookSnapshot represents one token type's current book state.
type OrderbookSnapshot struct {
	MarketID  string       `json:"marketId"`
	TokenType string       `json:"tokenType"` // "YES" or "NO"
	Bids      []PriceLevel `json:"bids"`      // sorted high to low
	Asks      []PriceLevel `json:"asks"`      // sorted low to high
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

// PriceLevel represents one aggregated [price, size] book level.
type PriceLevel struct {
	Price string `json:"price"`
	Size  int64  `json:"size"`
}

// TradeInfo represents a recent executed fill.
type TradeInfo struct {
	ID          string `json:"id"`
	MarketID    string `json:"marketId"`
	TokenType   string `json:"tokenType"`
	BuyOrderID  string `json:"buyOrderId"`
	SellOrderID string `json:"sellOrderId"`
	Price       string `json:"price"`
	Quantity    int64  `json:"quantity"`
	Timestamp   int64  `json:"timestamp"` // Unix milliseconds
}

// OrderInfo represents an order, open or historical.
type OrderInfo struct {
	ID             string `json:"id"`
	MarketID       string `json:"marketId"`
	UserID         string `json:"userId"`
	Side           string `json:"side"`      // "BUY" or "SELL"
	TokenType      string `json:"tokenType"` // "YES" or "NO"
	Price          string `json:"price"`
	Quantity       int64  `json:"quantity"`
	FilledQuantity int64  `json:"filledQuantity"`
	Remaining      int64  `json:"remaining"`
	Status         string `json:"status"` // "OPEN", "PARTIAL", "FILLED", "CANCELLED"
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// AccountInfo represents a user's balance and per-market position summary.
type AccountInfo struct {
	UserID       string                  `json:"userId"`
	ChainID      string                  `json:"chainId"`
	AvailableUSD string                  `json:"availableUsd"`
	Positions    map[string]PositionInfo `json:"positions"` // marketId -> position
}

// PositionInfo represents one market's token/collateral inventory.
type PositionInfo struct {
	YesTokens           int64  `json:"yesTokens"`
	NoTokens            int64  `json:"noTokens"`
	LockedYesTokens     int64  `json:"lockedYesTokens"`
	LockedNoTokens      int64  `json:"lockedNoTokens"`
	LockedCollateralYes string `json:"lockedCollateralYes"`
	LockedCollateralNo  string `json:"lockedCollateralNo"`
}

// ==============================
// REST Request Types
// ==============================

// CreateMarketRequest is the payload for POST /v1/markets.
type CreateMarketRequest struct {
	ID             string `json:"id"`
	Question       string `json:"question"`
	Creator        string `json:"creator"`
	ResolutionTime int64  `json:"resolutionTime"` // Unix milliseconds
}

// SettleMarketRequest is the payload for POST /v1/markets/{id}/settle.
type SettleMarketRequest struct {
	Outcome string `json:"outcome"` // "YES" or "NO"
}

// SubmitOrderRequest is the payload for POST /v1/orders: a signed limit
// order whose signature covers the canonical
// order:{marketId}:{userId}:{side}:{price}:{quantity}:{tokenType} message.
type SubmitOrderRequest struct {
	MarketID  string `json:"marketId"`
	UserID    string `json:"userId"`
	ChainID   string `json:"chainId"`
	Side      string `json:"side"`      // "BUY" or "SELL"
	TokenType string `json:"tokenType"` // "YES" or "NO"
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`

	WalletAddress  string `json:"walletAddress"`
	Signature      string `json:"signature"`
	SessionPubKey  string `json:"sessionPubKey,omitempty"`
	SessionAddress string `json:"sessionAddress,omitempty"`
}

// SubmitOrderResponse is the response from order submission.
type SubmitOrderResponse struct {
	Order OrderInfo `json:"order"`
}

// ErrorResponse is returned for all handler errors.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to subscribe to channels, e.g.
// "orderbook:{marketId}:{tokenType}" or "trades:{marketId}".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// OrderbookUpdate is broadcast to orderbook:{marketId}:{tokenType} after
// every matching pass that touches that book.
type OrderbookUpdate struct {
	Type      string       `json:"type"` // "orderbook"
	MarketID  string       `json:"marketId"`
	TokenType string       `json:"tokenType"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// TradeUpdate is broadcast to trades:{marketId} whenever a trade executes.
type TradeUpdate struct {
	Type      string `json:"type"` // "trade"
	MarketID  string `json:"marketId"`
	TokenType string `json:"tokenType"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
}
