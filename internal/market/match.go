package market

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
)

// MatchAll runs one matching pass over every goods in canonical order and
// returns the tick's trades. Queued cancellations apply first. An invariant
// violation in one goods' book is logged with the book state and that goods is
// skipped for the tick; the others still match.
func (m *Market) MatchAll(tick uint64) []Trade {
	m.applyPendingCancels()

	for _, id := range m.goods.IDs() {
		m.shares[id].advance()
		m.prevPrices[id] = m.prices[id]
	}

	var all []Trade
	for _, id := range m.goods.IDs() {
		trades, err := m.matchGoods(tick, id)
		if err != nil {
			d, _ := m.Depth(id)
			slog.Error("matching invariant violated, skipping goods for tick",
				"goods", id,
				"tick", tick,
				"error", err,
				"bids", d.Bids,
				"asks", d.Asks,
			)
			continue
		}
		all = append(all, trades...)
	}
	return all
}

// matchGoods crosses the book for one goods until no crossing pair remains.
func (m *Market) matchGoods(tick uint64, goods catalog.GoodsID) ([]Trade, error) {
	b := m.books[goods]
	var trades []Trade

	for b.crossed() {
		bid, ask := b.bestBid(), b.bestAsk()
		qty := bid.RemainingQty
		if ask.RemainingQty < qty {
			qty = ask.RemainingQty
		}
		if qty <= 0 {
			return trades, fmt.Errorf("non-positive fill quantity %d (bid %d, ask %d)", qty, bid.ID, ask.ID)
		}
		if bid.CompanyID == ask.CompanyID {
			// Self-cross: the older order yields so the book can clear.
			older := bid
			if ask.ID < bid.ID {
				older = ask
			}
			m.forceCancel(older)
			continue
		}

		price := m.tradePrice(bid, ask, tick)
		if err := m.settle(bid.CompanyID, ask.CompanyID, goods, qty, price); err != nil {
			return trades, fmt.Errorf("settle bid %d / ask %d: %w", bid.ID, ask.ID, err)
		}

		bid.RemainingQty -= qty
		ask.RemainingQty -= qty
		if bid.RemainingQty < 0 || ask.RemainingQty < 0 {
			return trades, fmt.Errorf("negative remaining quantity (bid %d, ask %d)", bid.ID, ask.ID)
		}
		if bid.RemainingQty == 0 {
			bid.Status = StatusFilled
			b.remove(bid)
			m.retire(bid)
		}
		if ask.RemainingQty == 0 {
			ask.Status = StatusFilled
			b.remove(ask)
			m.retire(ask)
		}

		t := Trade{
			ID:          uuid.NewString(),
			Goods:       goods,
			BuyerID:     bid.CompanyID,
			SellerID:    ask.CompanyID,
			BuyOrderID:  bid.ID,
			SellOrderID: ask.ID,
			Quantity:    qty,
			Price:       price,
			Tick:        tick,
		}
		m.recordTrade(t)
		trades = append(trades, t)
	}

	if b.crossed() {
		return trades, fmt.Errorf("book still crossed after matching")
	}
	return trades, nil
}

// tradePrice applies the pricing rule: the resting order's price when exactly
// one side was in the book before this tick, the earlier order's price when
// both were (a carried-over cross from a skipped tick), and the configured
// policy when both are new this tick.
func (m *Market) tradePrice(bid, ask *Order, tick uint64) float64 {
	bidResting := bid.CreatedTick < tick
	askResting := ask.CreatedTick < tick
	switch {
	case askResting && !bidResting:
		return ask.Price
	case bidResting && !askResting:
		return bid.Price
	case bidResting && askResting:
		if bid.ID < ask.ID {
			return bid.Price
		}
		return ask.Price
	}
	if m.cfg.NewCrossPricing == CrossEarlier {
		if bid.ID < ask.ID {
			return bid.Price
		}
		return ask.Price
	}
	return (bid.Price + ask.Price) / 2
}

// settle moves goods and cash for one fill. Consumer buys remove goods from
// the economy without a cash or inventory counterpart.
func (m *Market) settle(buyerID, sellerID company.ID, goods catalog.GoodsID, qty int, price float64) error {
	seller, ok := m.companies.Get(sellerID)
	if !ok {
		return fmt.Errorf("%w: seller %d", ErrUnknownCompany, sellerID)
	}
	total := price * float64(qty)
	seller.SettleSale(goods, qty)
	seller.Credit(total)

	if buyerID == company.Consumer {
		return nil
	}
	buyer, ok := m.companies.Get(buyerID)
	if !ok {
		return fmt.Errorf("%w: buyer %d", ErrUnknownCompany, buyerID)
	}
	buyer.Debit(total)
	buyer.AddStock(goods, qty, price)
	return nil
}

// forceCancel removes an order mid-pass (self-cross resolution only).
func (m *Market) forceCancel(o *Order) {
	o.Status = StatusCancelled
	m.books[o.Goods].remove(o)
	if o.Side == Sell && o.CompanyID != company.Consumer {
		if c, ok := m.companies.Get(o.CompanyID); ok {
			c.ReleaseSale(o.Goods, o.RemainingQty)
		}
	}
	m.retire(o)
}
