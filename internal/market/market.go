package market

import (
	"fmt"
	"sort"

	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
)

// Cross pricing policies for two orders submitted the same tick. When one side
// was resting before the tick, the trade always prices at the resting order.
const (
	CrossMidpoint = "midpoint" // average of the two limit prices
	CrossEarlier  = "earlier"  // price of the earlier-submitted order
)

// Config tunes the market simulator.
type Config struct {
	ShareWindowTicks int    `yaml:"share_window_ticks"`
	TradeHistoryCap  int    `yaml:"trade_history_cap"`
	NewCrossPricing  string `yaml:"new_cross_pricing"`
}

// DefaultConfig returns the standard market tuning.
func DefaultConfig() Config {
	return Config{
		ShareWindowTicks: 30,
		TradeHistoryCap:  200,
		NewCrossPricing:  CrossMidpoint,
	}
}

// Market owns every goods' order book, the price board, trade history, and
// market-share windows. During a tick the matching pass is the sole writer of
// order and trade state; the producing engines only submit new orders.
type Market struct {
	cfg       Config
	goods     *catalog.GoodsCatalog
	companies *company.Registry

	books  map[catalog.GoodsID]*book
	orders map[OrderID]*Order
	nextID OrderID

	// Filled and cancelled orders move out of the live index into a bounded
	// history, so a late cancel still gets a precise error.
	closed     map[OrderID]*Order
	closedFIFO []OrderID

	prices     map[catalog.GoodsID]float64
	prevPrices map[catalog.GoodsID]float64
	trades     map[catalog.GoodsID][]Trade
	shares     map[catalog.GoodsID]*shareWindow

	pendingCancels []OrderID
}

// New creates a market with every goods priced at its base price.
func New(goods *catalog.GoodsCatalog, companies *company.Registry, cfg Config) *Market {
	if cfg.ShareWindowTicks <= 0 {
		cfg.ShareWindowTicks = 30
	}
	if cfg.TradeHistoryCap <= 0 {
		cfg.TradeHistoryCap = 200
	}
	if cfg.NewCrossPricing == "" {
		cfg.NewCrossPricing = CrossMidpoint
	}

	m := &Market{
		cfg:        cfg,
		goods:      goods,
		companies:  companies,
		books:      make(map[catalog.GoodsID]*book),
		orders:     make(map[OrderID]*Order),
		closed:     make(map[OrderID]*Order),
		prices:     make(map[catalog.GoodsID]float64),
		prevPrices: make(map[catalog.GoodsID]float64),
		trades:     make(map[catalog.GoodsID][]Trade),
		shares:     make(map[catalog.GoodsID]*shareWindow),
		nextID:     1,
	}
	for _, g := range goods.All() {
		m.books[g.ID] = &book{}
		m.prices[g.ID] = g.BasePrice
		m.prevPrices[g.ID] = g.BasePrice
		m.shares[g.ID] = newShareWindow(cfg.ShareWindowTicks)
	}
	return m
}

// Submit validates an order and rests it on the book. Sell orders reserve the
// seller's stock immediately; buy orders are funds-checked but not escrowed.
// Orders from the consumer id are always considered funded.
func (m *Market) Submit(tick uint64, companyID company.ID, goods catalog.GoodsID, side Side, price float64, qty int) (*Order, error) {
	b, ok := m.books[goods]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGoods, goods)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}

	if companyID == company.Consumer {
		if side == Sell {
			return nil, fmt.Errorf("%w: consumer id cannot sell", ErrUnknownCompany)
		}
	} else {
		c, ok := m.companies.Get(companyID)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownCompany, companyID)
		}
		switch side {
		case Sell:
			if err := c.ReserveForSale(goods, qty); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInsufficientStock, err)
			}
		case Buy:
			if c.Cash < price*float64(qty) {
				return nil, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, price*float64(qty), c.Cash)
			}
		}
	}

	o := &Order{
		ID:           m.nextID,
		CompanyID:    companyID,
		Goods:        goods,
		Side:         side,
		Price:        price,
		OriginalQty:  qty,
		RemainingQty: qty,
		Status:       StatusOpen,
		CreatedTick:  tick,
	}
	m.nextID++
	m.orders[o.ID] = o
	b.insert(o)
	return o, nil
}

// Cancel queues a cancellation for the next tick boundary. Cancelling an
// order that is already filled or cancelled is a no-op failure; completed
// trades are never affected.
func (m *Market) Cancel(id OrderID) error {
	o, ok := m.orders[id]
	if !ok {
		if settled, ok := m.closed[id]; ok {
			return fmt.Errorf("%w: %d is %s", ErrOrderNotOpen, id, settled.Status)
		}
		return fmt.Errorf("%w: %d", ErrUnknownOrder, id)
	}
	if o.Status != StatusOpen {
		return fmt.Errorf("%w: %d is %s", ErrOrderNotOpen, id, o.Status)
	}
	m.pendingCancels = append(m.pendingCancels, id)
	return nil
}

// applyPendingCancels removes queued cancellations from the book, releasing
// any remaining sell-side stock reservation.
func (m *Market) applyPendingCancels() {
	for _, id := range m.pendingCancels {
		o, ok := m.orders[id]
		if !ok || o.Status != StatusOpen {
			continue
		}
		o.Status = StatusCancelled
		if b, ok := m.books[o.Goods]; ok {
			b.remove(o)
		}
		if o.Side == Sell && o.CompanyID != company.Consumer {
			if c, ok := m.companies.Get(o.CompanyID); ok {
				c.ReleaseSale(o.Goods, o.RemainingQty)
			}
		}
		m.retire(o)
	}
	m.pendingCancels = m.pendingCancels[:0]
}

// retire moves a settled order out of the live index. The closed history is
// capped at TradeHistoryCap; beyond that the oldest settled orders are
// forgotten entirely.
func (m *Market) retire(o *Order) {
	delete(m.orders, o.ID)
	m.closed[o.ID] = o
	m.closedFIFO = append(m.closedFIFO, o.ID)
	for len(m.closedFIFO) > m.cfg.TradeHistoryCap {
		delete(m.closed, m.closedFIFO[0])
		m.closedFIFO = m.closedFIFO[1:]
	}
}

// Order returns the order with the given id, looking through both the live
// index and the bounded closed history.
func (m *Market) Order(id OrderID) (*Order, bool) {
	if o, ok := m.orders[id]; ok {
		return o, true
	}
	o, ok := m.closed[id]
	return o, ok
}

// OpenOrders returns every open order sorted by id.
func (m *Market) OpenOrders() []*Order {
	var open []*Order
	for _, o := range m.orders {
		if o.Status == StatusOpen {
			open = append(open, o)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	return open
}

// Price returns the current price for goods: the last trade price, or the
// previous price (initially base price) when no trade has occurred.
func (m *Market) Price(goods catalog.GoodsID) float64 {
	return m.prices[goods]
}

// PriceDelta returns the price change over the last matching pass.
func (m *Market) PriceDelta(goods catalog.GoodsID) float64 {
	return m.prices[goods] - m.prevPrices[goods]
}

// Prices returns a copy of the current price table.
func (m *Market) Prices() map[catalog.GoodsID]float64 {
	out := make(map[catalog.GoodsID]float64, len(m.prices))
	for goods, p := range m.prices {
		out[goods] = p
	}
	return out
}

// SetPrice overrides the current price; used when restoring saved state.
func (m *Market) SetPrice(goods catalog.GoodsID, price float64) {
	m.prices[goods] = price
	m.prevPrices[goods] = price
}

// Depth returns the aggregated book for goods.
func (m *Market) Depth(goods catalog.GoodsID) (Depth, error) {
	b, ok := m.books[goods]
	if !ok {
		return Depth{}, fmt.Errorf("%w: %q", ErrUnknownGoods, goods)
	}
	d := Depth{
		Goods: goods,
		Bids:  depthLevels(b.bids),
		Asks:  depthLevels(b.asks),
	}
	if bid := b.bestBid(); bid != nil {
		p := bid.Price
		d.BestBid = &p
	}
	if ask := b.bestAsk(); ask != nil {
		p := ask.Price
		d.BestAsk = &p
	}
	if d.BestBid != nil && d.BestAsk != nil {
		s := *d.BestAsk - *d.BestBid
		d.Spread = &s
	}
	return d, nil
}

// BestBid returns the top-of-book bid price for goods.
func (m *Market) BestBid(goods catalog.GoodsID) (float64, bool) {
	if b, ok := m.books[goods]; ok {
		if bid := b.bestBid(); bid != nil {
			return bid.Price, true
		}
	}
	return 0, false
}

// BestAsk returns the top-of-book ask price for goods.
func (m *Market) BestAsk(goods catalog.GoodsID) (float64, bool) {
	if b, ok := m.books[goods]; ok {
		if ask := b.bestAsk(); ask != nil {
			return ask.Price, true
		}
	}
	return 0, false
}

// LowestAskBy returns a company's lowest open ask price for goods.
func (m *Market) LowestAskBy(goods catalog.GoodsID, id company.ID) (float64, bool) {
	b, ok := m.books[goods]
	if !ok {
		return 0, false
	}
	for _, o := range b.asks {
		if o.CompanyID == id {
			return o.Price, true
		}
	}
	return 0, false
}

// RecentTrades returns up to limit trades for goods, most recent first.
func (m *Market) RecentTrades(goods catalog.GoodsID, limit int) []Trade {
	hist := m.trades[goods]
	if limit <= 0 || limit > len(hist) {
		limit = len(hist)
	}
	out := make([]Trade, 0, limit)
	for i := len(hist) - 1; i >= len(hist)-limit; i-- {
		out = append(out, hist[i])
	}
	return out
}

// Shares returns the trailing-window market share table for goods. Share is
// measured supply-side: each trade credits the selling company with its sold
// volume and turnover, so the table answers "who supplies this market". Buy
// volume is deliberately not counted; consumer purchases would otherwise
// dominate every table.
func (m *Market) Shares(goods catalog.GoodsID) []ShareEntry {
	if w, ok := m.shares[goods]; ok {
		return w.table()
	}
	return nil
}

// ShareOf returns one company's trailing-window share of goods sold.
func (m *Market) ShareOf(goods catalog.GoodsID, id company.ID) float64 {
	if w, ok := m.shares[goods]; ok {
		return w.shareOf(id)
	}
	return 0
}

func (m *Market) recordTrade(t Trade) {
	hist := append(m.trades[t.Goods], t)
	if len(hist) > m.cfg.TradeHistoryCap {
		hist = hist[len(hist)-m.cfg.TradeHistoryCap:]
	}
	m.trades[t.Goods] = hist
	m.prices[t.Goods] = t.Price
	m.shares[t.Goods].add(t.SellerID, t.Quantity, t.Price*float64(t.Quantity))
}

// Restore reinserts saved open orders and prices after a load. Sell-side
// reservations are assumed to be part of the restored company inventories.
func (m *Market) Restore(orders []Order, prices map[catalog.GoodsID]float64) error {
	for goods, p := range prices {
		if _, ok := m.books[goods]; !ok {
			return fmt.Errorf("restore price: %w: %q", ErrUnknownGoods, goods)
		}
		m.SetPrice(goods, p)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	for i := range orders {
		o := orders[i]
		b, ok := m.books[o.Goods]
		if !ok {
			return fmt.Errorf("restore order %d: %w: %q", o.ID, ErrUnknownGoods, o.Goods)
		}
		restored := o
		if restored.Status == StatusOpen {
			m.orders[restored.ID] = &restored
			b.insert(&restored)
		} else {
			m.closed[restored.ID] = &restored
			m.closedFIFO = append(m.closedFIFO, restored.ID)
		}
		if restored.ID >= m.nextID {
			m.nextID = restored.ID + 1
		}
	}
	return nil
}
