package upstox

import "fmt"

// APIError carries the upstream HTTP status and Upstox error message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstox api error (status %d): %s", e.StatusCode, e.Message)
}

// apiEnvelope is the {status,data} wrapper Upstox puts around every payload.
type apiEnvelope struct {
	Status string `json:"status"`
	Errors []struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	} `json:"errors,omitempty"`
}

// Quote is a full market quote for one instrument.
type Quote struct {
	InstrumentToken string  `json:"instrument_token"`
	Symbol          string  `json:"symbol"`
	LastPrice       float64 `json:"last_price"`
	Volume          int64   `json:"volume"`
	AveragePrice    float64 `json:"average_price"`
	NetChange       float64 `json:"net_change"`
	OHLC            OHLC    `json:"ohlc"`
}

// OHLC holds open/high/low/close prices.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Candle is one bar of historical data: [timestamp, o, h, l, c, volume, oi].
type Candle []any

// HistoricalParams selects a historical candle series.
type HistoricalParams struct {
	InstrumentKey string `json:"instrument_key"`
	Interval      string `json:"interval"`
	ToDate        string `json:"to_date"`
	FromDate      string `json:"from_date,omitempty"`
}

// Funds reports available margin per segment.
type Funds struct {
	Equity    Margin `json:"equity"`
	Commodity Margin `json:"commodity"`
}

// Margin is the fund detail for one segment.
type Margin struct {
	AvailableMargin float64 `json:"available_margin"`
	UsedMargin      float64 `json:"used_margin"`
	PayinAmount     float64 `json:"payin_amount"`
}

// Position is one open position.
type Position struct {
	InstrumentToken string  `json:"instrument_token"`
	TradingSymbol   string  `json:"trading_symbol"`
	Exchange        string  `json:"exchange"`
	Product         string  `json:"product"`
	Quantity        int64   `json:"quantity"`
	AveragePrice    float64 `json:"average_price"`
	LastPrice       float64 `json:"last_price"`
	PnL             float64 `json:"pnl"`
}

// Holding is one long-term holding.
type Holding struct {
	ISIN          string  `json:"isin"`
	TradingSymbol string  `json:"trading_symbol"`
	Exchange      string  `json:"exchange"`
	Quantity      int64   `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
}

// Order is one order record.
type Order struct {
	OrderID         string  `json:"order_id"`
	Status          string  `json:"status"`
	TradingSymbol   string  `json:"trading_symbol"`
	Exchange        string  `json:"exchange"`
	TransactionType string  `json:"transaction_type"`
	OrderType       string  `json:"order_type"`
	Product         string  `json:"product"`
	Quantity        int64   `json:"quantity"`
	Price           float64 `json:"price"`
	TriggerPrice    float64 `json:"trigger_price"`
	FilledQuantity  int64   `json:"filled_quantity"`
	StatusMessage   string  `json:"status_message,omitempty"`
	OrderTimestamp  string  `json:"order_timestamp"`
}

// PlaceOrderParams are the fields for placing a new order.
type PlaceOrderParams struct {
	InstrumentToken string  `json:"instrument_token"`
	TransactionType string  `json:"transaction_type"`
	OrderType       string  `json:"order_type"`
	Product         string  `json:"product"`
	Quantity        int64   `json:"quantity"`
	Price           float64 `json:"price,omitempty"`
	TriggerPrice    float64 `json:"trigger_price,omitempty"`
	Validity        string  `json:"validity,omitempty"`
	IsAMO           bool    `json:"is_amo"`
}

// OrderResult is the acknowledgement for place and cancel calls.
type OrderResult struct {
	OrderID string `json:"order_id"`
}

// Profile is the account holder's profile.
type Profile struct {
	UserID    string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	Email     string   `json:"email"`
	Broker    string   `json:"broker"`
	Exchanges []string `json:"exchanges"`
	Products  []string `json:"products"`
	IsActive  bool     `json:"is_active"`
}

// Instrument is one tradable instrument on an exchange.
type Instrument struct {
	InstrumentKey string  `json:"instrument_key"`
	TradingSymbol string  `json:"trading_symbol"`
	Name          string  `json:"name"`
	Exchange      string  `json:"exchange"`
	Segment       string  `json:"segment"`
	LotSize       int64   `json:"lot_size"`
	TickSize      float64 `json:"tick_size"`
}
