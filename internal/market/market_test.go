package market

import (
	"errors"
	"testing"

	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
)

func testCatalog(t *testing.T) *catalog.GoodsCatalog {
	t.Helper()
	goods, err := catalog.NewGoodsCatalog([]catalog.GoodsDefinition{
		{ID: "iron-ore", Name: "Iron Ore", Category: "raw", BasePrice: 10},
		{ID: "steel", Name: "Steel", Category: "industrial", BasePrice: 120},
	})
	if err != nil {
		t.Fatalf("goods catalog: %v", err)
	}
	return goods
}

func testMarket(t *testing.T) (*Market, *company.Registry) {
	t.Helper()
	goods := testCatalog(t)
	reg := company.NewRegistry()
	for id := company.ID(1); id <= 3; id++ {
		c := company.New(id, "co", 100000, false)
		c.AddStock("steel", 500, 100)
		c.AddStock("iron-ore", 1000, 8)
		if err := reg.Add(c); err != nil {
			t.Fatalf("add company: %v", err)
		}
	}
	return New(goods, reg, DefaultConfig()), reg
}

func TestMatchAtRestingPrice(t *testing.T) {
	m, reg := testMarket(t)

	ask, err := m.Submit(1, 1, "steel", Sell, 100, 30)
	if err != nil {
		t.Fatalf("submit sell: %v", err)
	}
	m.MatchAll(1)

	bid, err := m.Submit(2, 2, "steel", Buy, 105, 30)
	if err != nil {
		t.Fatalf("submit buy: %v", err)
	}
	trades := m.MatchAll(2)

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.Price != 100 {
		t.Fatalf("trade should settle at resting ask price 100, got %v", tr.Price)
	}
	if tr.Quantity != 30 || tr.BuyOrderID != bid.ID || tr.SellOrderID != ask.ID {
		t.Fatalf("unexpected trade %+v", tr)
	}
	if ask.Status != StatusFilled || bid.Status != StatusFilled {
		t.Fatalf("both orders should be filled, got ask=%s bid=%s", ask.Status, bid.Status)
	}
	if m.Price("steel") != 100 {
		t.Fatalf("price board should show last trade price, got %v", m.Price("steel"))
	}

	seller, _ := reg.Get(1)
	buyer, _ := reg.Get(2)
	if seller.Quantity("steel") != 470 {
		t.Fatalf("seller should hold 470 steel, has %d", seller.Quantity("steel"))
	}
	if seller.StockOf("steel").ReservedForSale != 0 {
		t.Fatalf("sale reservation should be cleared, has %d", seller.StockOf("steel").ReservedForSale)
	}
	if buyer.Quantity("steel") != 530 {
		t.Fatalf("buyer should hold 530 steel, has %d", buyer.Quantity("steel"))
	}
	if seller.Cash != 100000+3000 || buyer.Cash != 100000-3000 {
		t.Fatalf("cash mismatch: seller %v buyer %v", seller.Cash, buyer.Cash)
	}
}

func TestPartialFillStaysOpen(t *testing.T) {
	m, _ := testMarket(t)

	bid, err := m.Submit(1, 1, "steel", Buy, 100, 100)
	if err != nil {
		t.Fatalf("submit buy: %v", err)
	}
	m.MatchAll(1)

	if _, err := m.Submit(2, 2, "steel", Sell, 95, 30); err != nil {
		t.Fatalf("submit sell: %v", err)
	}
	if _, err := m.Submit(2, 3, "steel", Sell, 90, 40); err != nil {
		t.Fatalf("submit sell: %v", err)
	}
	trades := m.MatchAll(2)

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	// The resting bid sets the price for both fills.
	for _, tr := range trades {
		if tr.Price != 100 {
			t.Fatalf("expected fills at resting bid price 100, got %v", tr.Price)
		}
	}
	if bid.Status != StatusOpen || bid.RemainingQty != 30 {
		t.Fatalf("bid should stay open with 30 remaining, got %s remaining %d", bid.Status, bid.RemainingQty)
	}
}

func TestPriceTimePriority(t *testing.T) {
	m, _ := testMarket(t)

	first, _ := m.Submit(1, 1, "steel", Sell, 100, 20)
	second, _ := m.Submit(1, 2, "steel", Sell, 100, 20)
	cheaper, _ := m.Submit(1, 3, "steel", Sell, 95, 20)
	m.MatchAll(1)

	if _, err := m.Submit(2, 1, "steel", Buy, 100, 20); err != nil {
		// company 1 is also the first seller; use another buyer instead
		t.Fatalf("submit buy: %v", err)
	}
	trades := m.MatchAll(2)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].SellOrderID != cheaper.ID {
		t.Fatalf("lowest ask should fill first, filled order %d", trades[0].SellOrderID)
	}

	if _, err := m.Submit(3, 3, "steel", Buy, 100, 20); err != nil {
		t.Fatalf("submit buy: %v", err)
	}
	trades = m.MatchAll(3)
	if len(trades) != 1 || trades[0].SellOrderID != first.ID {
		t.Fatalf("earlier ask at the same price should fill first, got %+v", trades)
	}
	if second.Status != StatusOpen {
		t.Fatalf("later ask should still rest, got %s", second.Status)
	}
}

func TestNewCrossMidpointPricing(t *testing.T) {
	m, _ := testMarket(t)

	if _, err := m.Submit(1, 1, "steel", Sell, 90, 10); err != nil {
		t.Fatalf("submit sell: %v", err)
	}
	if _, err := m.Submit(1, 2, "steel", Buy, 110, 10); err != nil {
		t.Fatalf("submit buy: %v", err)
	}
	trades := m.MatchAll(1)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Price != 100 {
		t.Fatalf("same-tick cross should settle at midpoint 100, got %v", trades[0].Price)
	}
}

func TestNewCrossEarlierPricing(t *testing.T) {
	goods := testCatalog(t)
	reg := company.NewRegistry()
	for id := company.ID(1); id <= 2; id++ {
		c := company.New(id, "co", 100000, false)
		c.AddStock("steel", 100, 100)
		reg.Add(c)
	}
	cfg := DefaultConfig()
	cfg.NewCrossPricing = CrossEarlier
	m := New(goods, reg, cfg)

	ask, _ := m.Submit(1, 1, "steel", Sell, 90, 10)
	m.Submit(1, 2, "steel", Buy, 110, 10)
	trades := m.MatchAll(1)
	if len(trades) != 1 || trades[0].Price != 90 {
		t.Fatalf("earlier order (ask %d at 90) should set the price, got %+v", ask.ID, trades)
	}
}

func TestSellReservesStock(t *testing.T) {
	m, reg := testMarket(t)
	seller, _ := reg.Get(1)

	if _, err := m.Submit(1, 1, "steel", Sell, 100, 400); err != nil {
		t.Fatalf("submit sell: %v", err)
	}
	if got := seller.Available("steel"); got != 100 {
		t.Fatalf("400 should be reserved, 100 available, got %d", got)
	}
	if _, err := m.Submit(1, 1, "steel", Sell, 100, 200); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("over-selling should fail with ErrInsufficientStock, got %v", err)
	}
	// Reserved goods still count toward the held quantity.
	if seller.Quantity("steel") != 500 {
		t.Fatalf("quantity should be unchanged by reservation, got %d", seller.Quantity("steel"))
	}
}

func TestBuyRequiresFunds(t *testing.T) {
	m, _ := testMarket(t)
	if _, err := m.Submit(1, 1, "steel", Buy, 1000, 500); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	m, _ := testMarket(t)
	if _, err := m.Submit(1, 1, "plutonium", Buy, 10, 1); !errors.Is(err, ErrUnknownGoods) {
		t.Fatalf("expected ErrUnknownGoods, got %v", err)
	}
	if _, err := m.Submit(1, 1, "steel", Buy, 0, 1); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := m.Submit(1, 1, "steel", Buy, 10, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := m.Submit(1, 99, "steel", Buy, 10, 1); !errors.Is(err, ErrUnknownCompany) {
		t.Fatalf("expected ErrUnknownCompany, got %v", err)
	}
	if _, err := m.Submit(1, company.Consumer, "steel", Sell, 10, 1); err == nil {
		t.Fatal("consumer id must not sell")
	}
}

func TestCancelAppliesAtTickBoundary(t *testing.T) {
	m, reg := testMarket(t)
	seller, _ := reg.Get(1)

	o, _ := m.Submit(1, 1, "steel", Sell, 100, 50)
	m.MatchAll(1)

	if err := m.Cancel(o.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Still open and reserved until the boundary.
	if o.Status != StatusOpen || seller.StockOf("steel").ReservedForSale != 50 {
		t.Fatalf("cancel should not apply immediately: status %s reserved %d",
			o.Status, seller.StockOf("steel").ReservedForSale)
	}

	m.MatchAll(2)
	if o.Status != StatusCancelled {
		t.Fatalf("order should be cancelled after boundary, got %s", o.Status)
	}
	if seller.StockOf("steel").ReservedForSale != 0 {
		t.Fatalf("reservation should be released, got %d", seller.StockOf("steel").ReservedForSale)
	}

	// Cancelling a settled order is a no-op failure.
	if err := m.Cancel(o.ID); !errors.Is(err, ErrOrderNotOpen) {
		t.Fatalf("expected ErrOrderNotOpen, got %v", err)
	}
	if err := m.Cancel(9999); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
}

func TestSelfCrossCancelsOlderOrder(t *testing.T) {
	m, _ := testMarket(t)

	ask, _ := m.Submit(1, 1, "steel", Sell, 100, 10)
	bid, _ := m.Submit(1, 1, "steel", Buy, 110, 10)
	trades := m.MatchAll(1)

	if len(trades) != 0 {
		t.Fatalf("self-cross must not trade, got %d trades", len(trades))
	}
	if ask.Status != StatusCancelled {
		t.Fatalf("older side should be cancelled, got %s", ask.Status)
	}
	if bid.Status != StatusOpen {
		t.Fatalf("newer side should survive, got %s", bid.Status)
	}
}

func TestDepthAggregatesLevels(t *testing.T) {
	m, _ := testMarket(t)

	m.Submit(1, 1, "steel", Sell, 100, 10)
	m.Submit(1, 2, "steel", Sell, 100, 15)
	m.Submit(1, 3, "steel", Sell, 105, 5)
	m.Submit(1, 1, "steel", Buy, 90, 20)

	d, err := m.Depth("steel")
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if len(d.Asks) != 2 || d.Asks[0].Price != 100 || d.Asks[0].Quantity != 25 {
		t.Fatalf("asks should aggregate same-price orders: %+v", d.Asks)
	}
	if len(d.Bids) != 1 || d.Bids[0].Price != 90 {
		t.Fatalf("unexpected bids: %+v", d.Bids)
	}
	if d.BestBid == nil || *d.BestBid != 90 || d.BestAsk == nil || *d.BestAsk != 100 {
		t.Fatalf("best bid/ask wrong: %+v", d)
	}
	if d.Spread == nil || *d.Spread != 10 {
		t.Fatalf("spread should be 10, got %+v", d.Spread)
	}

	empty, _ := m.Depth("iron-ore")
	if empty.BestBid != nil || empty.BestAsk != nil || empty.Spread != nil {
		t.Fatalf("empty book should have nil best prices: %+v", empty)
	}
}

func TestMarketShareWindow(t *testing.T) {
	m, _ := testMarket(t)

	// Seller 1 moves 60, seller 2 moves 40 over two ticks.
	m.Submit(1, 1, "steel", Sell, 100, 60)
	m.Submit(1, 3, "steel", Buy, 100, 60)
	m.MatchAll(1)
	m.Submit(2, 2, "steel", Sell, 100, 40)
	m.Submit(2, 3, "steel", Buy, 100, 40)
	m.MatchAll(2)

	if got := m.ShareOf("steel", 1); got < 0.59 || got > 0.61 {
		t.Fatalf("seller 1 share should be 0.6, got %v", got)
	}
	shares := m.Shares("steel")
	if len(shares) != 2 || shares[0].CompanyID != 1 {
		t.Fatalf("share table should lead with seller 1: %+v", shares)
	}

	// Shares fall out of the window after ShareWindowTicks empty ticks.
	for tick := uint64(3); tick < 40; tick++ {
		m.MatchAll(tick)
	}
	if got := m.ShareOf("steel", 1); got != 0 {
		t.Fatalf("share should expire with the window, got %v", got)
	}
}

func TestConsumerBuysRemoveGoods(t *testing.T) {
	m, reg := testMarket(t)
	seller, _ := reg.Get(1)
	before := seller.Quantity("steel")

	m.Submit(1, 1, "steel", Sell, 100, 25)
	if _, err := m.Submit(1, company.Consumer, "steel", Buy, 105, 25); err != nil {
		t.Fatalf("consumer buy: %v", err)
	}
	trades := m.MatchAll(1)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if seller.Quantity("steel") != before-25 {
		t.Fatalf("goods should leave the seller, holds %d", seller.Quantity("steel"))
	}
	if seller.Cash != 100000+trades[0].Price*25 {
		t.Fatalf("seller should be paid, cash %v", seller.Cash)
	}
	// No company gains the goods: total held steel shrank by 25.
	total := 0
	for _, c := range reg.All() {
		total += c.Quantity("steel")
	}
	if total != 3*500-25 {
		t.Fatalf("consumer purchase should remove goods from the economy, total %d", total)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	m, _ := testMarket(t)

	o1, _ := m.Submit(1, 1, "steel", Sell, 100, 50)
	o2, _ := m.Submit(1, 2, "steel", Buy, 90, 20)
	m.MatchAll(1)

	var saved []Order
	for _, o := range m.OpenOrders() {
		saved = append(saved, *o)
	}
	prices := m.Prices()

	goods := testCatalog(t)
	reg2 := company.NewRegistry()
	for id := company.ID(1); id <= 3; id++ {
		c := company.New(id, "co", 100000, false)
		c.AddStock("steel", 500, 100)
		if id == 1 {
			c.StockOf("steel").ReservedForSale = 50
		}
		reg2.Add(c)
	}
	m2 := New(goods, reg2, DefaultConfig())
	if err := m2.Restore(saved, prices); err != nil {
		t.Fatalf("restore: %v", err)
	}

	r1, ok := m2.Order(o1.ID)
	if !ok || r1.RemainingQty != 50 || r1.Status != StatusOpen {
		t.Fatalf("restored ask wrong: %+v", r1)
	}
	if _, ok := m2.Order(o2.ID); !ok {
		t.Fatalf("restored bid missing")
	}

	// New ids continue above the restored ones.
	o3, _ := m2.Submit(2, 3, "steel", Buy, 80, 5)
	if o3.ID <= o2.ID {
		t.Fatalf("new order id %d should exceed restored max %d", o3.ID, o2.ID)
	}
}

func TestSettledOrdersLeaveLiveIndex(t *testing.T) {
	goods := testCatalog(t)
	reg := company.NewRegistry()
	c := company.New(1, "co", 100000, false)
	c.AddStock("steel", 500, 100)
	reg.Add(c)
	cfg := DefaultConfig()
	cfg.TradeHistoryCap = 8
	m := New(goods, reg, cfg)

	// One fully-filled pair per tick, far more than the history cap.
	var first, last *Order
	for tick := uint64(1); tick <= 30; tick++ {
		ask, err := m.Submit(tick, 1, "steel", Sell, 100, 1)
		if err != nil {
			t.Fatalf("tick %d sell: %v", tick, err)
		}
		if _, err := m.Submit(tick, company.Consumer, "steel", Buy, 100, 1); err != nil {
			t.Fatalf("tick %d buy: %v", tick, err)
		}
		if trades := m.MatchAll(tick); len(trades) != 1 {
			t.Fatalf("tick %d: expected 1 trade, got %d", tick, len(trades))
		}
		if first == nil {
			first = ask
		}
		last = ask
	}

	if n := len(m.orders); n != 0 {
		t.Fatalf("live index should be empty after all fills, holds %d", n)
	}
	if n := len(m.closed); n != cfg.TradeHistoryCap {
		t.Fatalf("closed history should be capped at %d, holds %d", cfg.TradeHistoryCap, n)
	}

	// A recently settled order still cancels with a precise error; one old
	// enough to have been pruned reads as unknown.
	if err := m.Cancel(last.ID); !errors.Is(err, ErrOrderNotOpen) {
		t.Fatalf("recent filled order: expected ErrOrderNotOpen, got %v", err)
	}
	if err := m.Cancel(first.ID); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("pruned order: expected ErrUnknownOrder, got %v", err)
	}
	if _, ok := m.Order(last.ID); !ok {
		t.Fatalf("recent filled order should still be readable")
	}
}

func TestBadBookSkipsOnlyThatGoods(t *testing.T) {
	m, _ := testMarket(t)

	oreAsk, err := m.Submit(1, 1, "iron-ore", Sell, 8, 10)
	if err != nil {
		t.Fatalf("submit ore sell: %v", err)
	}
	if _, err := m.Submit(1, 2, "iron-ore", Buy, 12, 10); err != nil {
		t.Fatalf("submit ore buy: %v", err)
	}
	m.Submit(1, 1, "steel", Sell, 100, 20)
	m.Submit(1, 2, "steel", Buy, 100, 20)

	// Corrupt the resting ask so the ore pass hits the zero-fill guard.
	oreAsk.RemainingQty = 0

	trades := m.MatchAll(1)
	if len(trades) != 1 || trades[0].Goods != "steel" {
		t.Fatalf("steel should still match while ore is skipped, got %+v", trades)
	}
	// The corrupt book is left as-is for the next tick rather than half-settled.
	if bid, ok := m.BestBid("iron-ore"); !ok || bid != 12 {
		t.Fatalf("ore bid should remain resting, got %v %v", bid, ok)
	}
	if ask, ok := m.BestAsk("iron-ore"); !ok || ask != 8 {
		t.Fatalf("ore ask should remain resting, got %v %v", ask, ok)
	}
	if oreAsk.Status != StatusOpen {
		t.Fatalf("skipped order must not change status, got %s", oreAsk.Status)
	}
}

func TestNoCrossedBookAfterMatching(t *testing.T) {
	m, _ := testMarket(t)

	// A pile of overlapping orders across two ticks.
	m.Submit(1, 1, "steel", Sell, 95, 40)
	m.Submit(1, 2, "steel", Buy, 105, 25)
	m.Submit(1, 3, "steel", Sell, 101, 30)
	m.MatchAll(1)
	m.Submit(2, 3, "steel", Buy, 99, 60)
	m.Submit(2, 2, "steel", Sell, 98, 10)
	m.MatchAll(2)

	bid, hasBid := m.BestBid("steel")
	ask, hasAsk := m.BestAsk("steel")
	if hasBid && hasAsk && bid >= ask {
		t.Fatalf("crossed book persisted after matching: bid %v >= ask %v", bid, ask)
	}
}
