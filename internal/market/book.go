package market

import "sort"

// book holds the resting orders for one goods. Bids are kept sorted by price
// descending, asks by price ascending; ties on price keep order-id order,
// which is submission order (time priority, FIFO).
type book struct {
	bids []*Order
	asks []*Order
}

// insert places an order on its side, preserving price-time ordering.
func (b *book) insert(o *Order) {
	if o.Side == Buy {
		i := sort.Search(len(b.bids), func(i int) bool {
			if b.bids[i].Price != o.Price {
				return b.bids[i].Price < o.Price
			}
			return b.bids[i].ID > o.ID
		})
		b.bids = append(b.bids, nil)
		copy(b.bids[i+1:], b.bids[i:])
		b.bids[i] = o
		return
	}
	i := sort.Search(len(b.asks), func(i int) bool {
		if b.asks[i].Price != o.Price {
			return b.asks[i].Price > o.Price
		}
		return b.asks[i].ID > o.ID
	})
	b.asks = append(b.asks, nil)
	copy(b.asks[i+1:], b.asks[i:])
	b.asks[i] = o
}

// remove drops an order from its side. No-op if the order is not present.
func (b *book) remove(o *Order) {
	side := &b.bids
	if o.Side == Sell {
		side = &b.asks
	}
	for i, cur := range *side {
		if cur.ID == o.ID {
			*side = append((*side)[:i], (*side)[i+1:]...)
			return
		}
	}
}

// bestBid returns the highest-priced bid, or nil.
func (b *book) bestBid() *Order {
	if len(b.bids) == 0 {
		return nil
	}
	return b.bids[0]
}

// bestAsk returns the lowest-priced ask, or nil.
func (b *book) bestAsk() *Order {
	if len(b.asks) == 0 {
		return nil
	}
	return b.asks[0]
}

// crossed reports whether the best bid meets or exceeds the best ask.
func (b *book) crossed() bool {
	bid, ask := b.bestBid(), b.bestAsk()
	return bid != nil && ask != nil && bid.Price >= ask.Price
}

// depthLevels aggregates remaining quantity per price level for one side.
// The input slice is already in priority order, so levels come out
// best-first on both sides.
func depthLevels(orders []*Order) []PriceLevel {
	var levels []PriceLevel
	for _, o := range orders {
		if n := len(levels); n > 0 && levels[n-1].Price == o.Price {
			levels[n-1].Quantity += o.RemainingQty
			continue
		}
		levels = append(levels, PriceLevel{Price: o.Price, Quantity: o.RemainingQty})
	}
	return levels
}
