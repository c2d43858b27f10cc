// Package market implements the per-goods continuous double-auction order
// book: price-time priority matching, trades, depth, a price board, and
// trailing market-share windows.
package market

import (
	"errors"

	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
)

// Rejection reasons returned synchronously to order submitters.
var (
	ErrUnknownGoods      = errors.New("unknown goods id")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrUnknownCompany    = errors.New("unknown company id")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnknownOrder      = errors.New("unknown order id")
	ErrOrderNotOpen      = errors.New("order is not open")
)

// Side is the order side.
type Side uint8

const (
	Buy Side = iota
	Sell
)

// String returns "buy" or "sell".
func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Order status values.
const (
	StatusOpen      = "open"
	StatusFilled    = "filled"
	StatusCancelled = "cancelled"
)

// OrderID identifies an order. Ids are assigned monotonically in submission
// order, which doubles as the FIFO tie-break for same-tick, same-price orders.
type OrderID uint64

// Order is a resting or filled market order.
type Order struct {
	ID           OrderID         `json:"id"`
	CompanyID    company.ID      `json:"company_id"`
	Goods        catalog.GoodsID `json:"goods"`
	Side         Side            `json:"side"`
	Price        float64         `json:"price"`
	OriginalQty  int             `json:"original_quantity"`
	RemainingQty int             `json:"remaining_quantity"`
	Status       string          `json:"status"`
	CreatedTick  uint64          `json:"created_tick"`
}

// Trade is a completed match, immutable once recorded.
type Trade struct {
	ID          string          `json:"id"`
	Goods       catalog.GoodsID `json:"goods"`
	BuyerID     company.ID      `json:"buyer_id"`
	SellerID    company.ID      `json:"seller_id"`
	BuyOrderID  OrderID         `json:"buy_order_id"`
	SellOrderID OrderID         `json:"sell_order_id"`
	Quantity    int             `json:"quantity"`
	Price       float64         `json:"price"`
	Tick        uint64          `json:"tick"`
}

// PriceLevel is the aggregate resting quantity at one price.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Depth is the book snapshot for one goods. Best prices and spread are nil
// when the corresponding side is empty.
type Depth struct {
	Goods   catalog.GoodsID `json:"goods"`
	Bids    []PriceLevel    `json:"bids"`
	Asks    []PriceLevel    `json:"asks"`
	BestBid *float64        `json:"best_bid"`
	BestAsk *float64        `json:"best_ask"`
	Spread  *float64        `json:"spread"`
}
