// Package broker wraps the Noren-style vendor REST API used by the account.
package broker

import (
	"context"
	"time"
)

// OrderSide is the buy/sell flag the vendor expects.
type OrderSide string

const (
	SideBuy  OrderSide = "B"
	SideSell OrderSide = "S"
)

// Fixed order parameters: intraday market orders, valid for the day only.
const (
	productTypeIntraday = "M"
	priceTypeMarket     = "MKT"
	retentionDay        = "DAY"
)

// Position is an open holding as reported by the broker. Numeric fields come
// over the wire as strings; everything else stays in Raw untouched.
type Position struct {
	Symbol       string  `json:"tsym"`
	Exchange     string  `json:"exch"`
	Product      string  `json:"prd"`
	NetQuantity  int     `json:"netqty,string"`
	AveragePrice float64 `json:"avgnetprice,string"`

	Raw map[string]interface{} `json:"-"`
}

// Quote is a broker-reported price snapshot for an instrument.
type Quote struct {
	Symbol     string
	LastPrice  float64
	Time       time.Time
	FromStream bool
}

// Broker is the surface the session controller and monitors consume. Failures
// never propagate: implementations log them and return sentinels.
type Broker interface {
	Login(ctx context.Context) bool
	ListPositions(ctx context.Context) []Position
	GetQuote(ctx context.Context, symbol string) (Quote, bool)
	PlaceOrder(ctx context.Context, symbol string, quantity int, side OrderSide)
	Logout(ctx context.Context)
}

// Wire-level responses. The vendor reports outcomes via stat=="Ok".
type loginResponse struct {
	Stat         string `json:"stat"`
	SessionToken string `json:"susertoken"`
	ErrorMessage string `json:"emsg"`
}

type quoteResponse struct {
	Stat         string `json:"stat"`
	Symbol       string `json:"tsym"`
	LastPrice    string `json:"lp"`
	ErrorMessage string `json:"emsg"`
}

type orderResponse struct {
	Stat         string `json:"stat"`
	OrderNumber  string `json:"norenordno"`
	ErrorMessage string `json:"emsg"`
}

const statOK = "Ok"
