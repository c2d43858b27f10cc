package ai

import (
	"math"
	"reflect"
	"testing"

	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
	"github.com/talgya/magnate/internal/market"
	"github.com/talgya/magnate/internal/production"
)

const (
	testPlayer     = company.ID(1)
	testCompetitor = company.ID(2)
)

func testCatalogs(t *testing.T) (*catalog.GoodsCatalog, *catalog.BuildingCatalog) {
	t.Helper()
	goods, err := catalog.NewGoodsCatalog([]catalog.GoodsDefinition{
		{ID: "iron-ore", Name: "Iron Ore", Category: "raw", BasePrice: 10},
		{ID: "coal", Name: "Coal", Category: "raw", BasePrice: 8},
		{ID: "steel", Name: "Steel", Category: "industrial", BasePrice: 120},
	})
	if err != nil {
		t.Fatalf("goods: %v", err)
	}
	// Instant construction keeps the mill operational from tick one.
	defs, err := catalog.NewBuildingCatalog([]catalog.BuildingDefinition{
		{
			ID: "steel-mill", Name: "Steel Mill", Category: "heavy_industry",
			BaseCost: 10000, MaintenanceCost: 600, MaxWorkers: 80,
			Slots: []catalog.ProductionSlot{
				{
					ID: "furnace", DefaultMethodID: "smelting",
					Methods: []catalog.ProductionMethod{
						{
							ID:            "smelting",
							Inputs:        []catalog.GoodsAmount{{Goods: "iron-ore", Amount: 100}, {Goods: "coal", Amount: 40}},
							Outputs:       []catalog.GoodsAmount{{Goods: "steel", Amount: 60}},
							TicksRequired: 5, LaborRequired: 60, PowerRequired: 50,
							Efficiency: 1.0,
						},
					},
				},
			},
		},
	}, goods)
	if err != nil {
		t.Fatalf("buildings: %v", err)
	}
	return goods, defs
}

// testWorld wires a market, a calculator, and one competitor company that
// owns an operational steel mill.
func testWorld(t *testing.T, competitorCash float64) (*Director, *Competitor, *market.Market, *company.Registry) {
	t.Helper()
	goods, defs := testCatalogs(t)

	reg := company.NewRegistry()
	player := company.New(testPlayer, "Player Co", 100000, false)
	player.AddStock("steel", 300, 90)
	if err := reg.Add(player); err != nil {
		t.Fatalf("add player: %v", err)
	}
	rival := company.New(testCompetitor, "Rival Co", competitorCash, true)
	rival.AddStock("steel", 200, 80)
	if err := reg.Add(rival); err != nil {
		t.Fatalf("add rival: %v", err)
	}

	mkt := market.New(goods, reg, market.DefaultConfig())
	prod := production.NewCalculator(goods, defs, reg)
	if _, err := prod.Purchase(testCompetitor, "steel-mill"); err != nil {
		t.Fatalf("purchase mill: %v", err)
	}

	d := NewDirector(goods, reg, mkt, prod, testPlayer, DefaultConfig(), 7)
	comp := NewCompetitor(testCompetitor, Monopolist)
	d.Add(comp)
	return d, comp, mkt, reg
}

func TestParsePersonalityRoundTrip(t *testing.T) {
	all := []Personality{Monopolist, TrendSurfer, OldMoney, Innovator, CostLeader}
	for _, p := range all {
		got, err := ParsePersonality(p.String())
		if err != nil {
			t.Fatalf("parse %q: %v", p.String(), err)
		}
		if got != p {
			t.Fatalf("round trip of %q gave %q", p.String(), got.String())
		}
	}
	if _, err := ParsePersonality("ruthless"); err == nil {
		t.Fatal("unknown personality should not parse")
	}
}

func TestPersonalityParams(t *testing.T) {
	for _, p := range []Personality{Monopolist, TrendSurfer, OldMoney, Innovator, CostLeader} {
		w := p.Params()
		if w.OrderSize <= 0 || w.OrderSize > 1 {
			t.Fatalf("%s order size %v out of range", p, w.OrderSize)
		}
		if w.Aggressiveness <= 0 || w.RiskTolerance <= 0 || w.TrustSensitivity <= 0 {
			t.Fatalf("%s has a non-positive weight: %+v", p, w)
		}
	}
	if CostLeader.Params().SellSkew >= 0 {
		t.Fatal("cost leader should undercut the market price")
	}
	if Monopolist.Params().SellSkew <= 0 {
		t.Fatal("monopolist should price above the market")
	}
	if OldMoney.Params().OrderSize >= Monopolist.Params().OrderSize {
		t.Fatal("old money should commit less stock per tick than a monopolist")
	}
}

func TestClampStance(t *testing.T) {
	if got := clampStance(150); got != 100 {
		t.Fatalf("clamp high: got %v", got)
	}
	if got := clampStance(-150); got != -100 {
		t.Fatalf("clamp low: got %v", got)
	}
	if got := clampStance(5); got != 5 {
		t.Fatalf("in-range value changed: got %v", got)
	}
}

func TestSeverityGrades(t *testing.T) {
	cases := []struct {
		margin float64
		want   Severity
	}{
		{0.5, SeverityCritical},
		{0.3, SeverityMajor},
		{0.2, SeverityModerate},
		{0.05, SeverityMinor},
	}
	for _, c := range cases {
		if got := marginSeverity(c.margin); got != c.want {
			t.Fatalf("margin %v: got %s, want %s", c.margin, got, c.want)
		}
	}
	if costSeverity(150000) != SeverityMajor || costSeverity(50000) != SeverityModerate || costSeverity(5000) != SeverityMinor {
		t.Fatal("cost severity grading is off")
	}
}

func TestDirectorPlacesSellAndBuyOrders(t *testing.T) {
	d, _, mkt, _ := testWorld(t, 500000)
	d.Tick(1)

	w := Monopolist.Params()
	var sell, oreBuy, coalBuy *market.Order
	for _, o := range mkt.OpenOrders() {
		switch {
		case o.Goods == "steel" && o.Side == market.Sell:
			sell = o
		case o.Goods == "iron-ore" && o.Side == market.Buy:
			oreBuy = o
		case o.Goods == "coal" && o.Side == market.Buy:
			coalBuy = o
		}
	}

	if sell == nil {
		t.Fatal("competitor should offer its steel")
	}
	if want := int(200 * w.OrderSize); sell.RemainingQty != want {
		t.Fatalf("sell quantity: got %d, want %d", sell.RemainingQty, want)
	}
	if want := 120 * (1 + w.SellSkew); math.Abs(sell.Price-want) > 1e-9 {
		t.Fatalf("sell price: got %v, want %v", sell.Price, want)
	}

	// Input cover: per-tick need times the configured cover, nothing held.
	if oreBuy == nil || coalBuy == nil {
		t.Fatal("competitor should restock both mill inputs")
	}
	if want := 100 * DefaultConfig().StockCoverTicks; oreBuy.RemainingQty != want {
		t.Fatalf("ore buy quantity: got %d, want %d", oreBuy.RemainingQty, want)
	}
	if want := 40 * DefaultConfig().StockCoverTicks; coalBuy.RemainingQty != want {
		t.Fatalf("coal buy quantity: got %d, want %d", coalBuy.RemainingQty, want)
	}
	if want := 10 * (1 + w.BuyPremium); math.Abs(oreBuy.Price-want) > 1e-9 {
		t.Fatalf("ore buy price: got %v, want %v", oreBuy.Price, want)
	}
}

func TestBuyOrdersDownsizeToBudget(t *testing.T) {
	// After buying the mill only 200 cash remains, so the tick budget is 100.
	d, _, mkt, _ := testWorld(t, 10200)

	// Drain the sellable steel so only buy orders show up.
	rival, _ := d.companies.Get(testCompetitor)
	if err := rival.RemoveStock("steel", 200); err != nil {
		t.Fatalf("remove steel: %v", err)
	}

	d.Tick(1)

	var buys []*market.Order
	for _, o := range mkt.OpenOrders() {
		if o.Side == market.Buy {
			buys = append(buys, o)
		}
	}
	if len(buys) != 1 {
		t.Fatalf("expected one downsized buy order, got %d", len(buys))
	}
	// Inputs restock in canonical goods order, so the budget goes to coal
	// first and nothing is left for ore.
	o := buys[0]
	if o.Goods != "coal" {
		t.Fatalf("budget should cover coal only, got a %s order", o.Goods)
	}
	coalPrice := 8 * (1 + Monopolist.Params().BuyPremium)
	if want := int(100 / coalPrice); o.RemainingQty != want {
		t.Fatalf("downsized quantity: got %d, want %d", o.RemainingQty, want)
	}
}

func TestUndercutRaisesHostility(t *testing.T) {
	d, comp, mkt, _ := testWorld(t, 500000)
	w := Monopolist.Params()

	// Tick one: no asks on the board and no share movement, so neither
	// accumulator moves.
	d.Tick(1)
	if comp.TrustWithPlayer != 0 {
		t.Fatalf("trust should not drift on a quiet tick, got %v", comp.TrustWithPlayer)
	}
	if comp.HostilityToPlayer != 0 {
		t.Fatalf("hostility should start at zero, got %v", comp.HostilityToPlayer)
	}

	// The player undercuts the competitor's standing ask by far more than
	// the threshold.
	if _, err := mkt.Submit(2, testPlayer, "steel", market.Sell, 100, 50); err != nil {
		t.Fatalf("player ask: %v", err)
	}
	d.Tick(2)

	if want := 2 * w.TrustSensitivity; math.Abs(comp.HostilityToPlayer-want) > 1e-9 {
		t.Fatalf("hostility after undercut: got %v, want %v", comp.HostilityToPlayer, want)
	}
	if comp.TrustWithPlayer != 0 {
		t.Fatalf("trust moved during undercut tick: got %v", comp.TrustWithPlayer)
	}
}

func TestTrustGrowsOnlyWithOwnShareGrowth(t *testing.T) {
	d, comp, mkt, _ := testWorld(t, 500000)
	w := Monopolist.Params()

	// Tick one rests the competitor's ask; nothing trades yet.
	d.Tick(1)
	mkt.MatchAll(1)
	if comp.TrustWithPlayer != 0 {
		t.Fatalf("trust should stay flat without sales, got %v", comp.TrustWithPlayer)
	}

	// The player buys from the ask without undercutting, handing the
	// competitor its whole steel share.
	if _, err := mkt.Submit(2, testPlayer, "steel", market.Buy, 130, 50); err != nil {
		t.Fatalf("player bid: %v", err)
	}
	if trades := mkt.MatchAll(2); len(trades) != 1 {
		t.Fatalf("expected the bid to fill, got %d trades", len(trades))
	}

	d.Tick(3)
	if want := 0.2 * w.TrustSensitivity; math.Abs(comp.TrustWithPlayer-want) > 1e-9 {
		t.Fatalf("growing share without undercut should build trust: got %v, want %v", comp.TrustWithPlayer, want)
	}
	if comp.HostilityToPlayer != 0 {
		t.Fatalf("a plain purchase should not raise hostility, got %v", comp.HostilityToPlayer)
	}

	// With the share flat, further ticks build no more trust.
	d.Tick(4)
	if want := 0.2 * w.TrustSensitivity; math.Abs(comp.TrustWithPlayer-want) > 1e-9 {
		t.Fatalf("flat share should not keep building trust: got %v", comp.TrustWithPlayer)
	}
}

func TestStartingBuildingsAreNotMarketEntries(t *testing.T) {
	d, comp, _, _ := testWorld(t, 500000)

	var events []Event
	for tick := uint64(1); tick <= 200; tick++ {
		events = append(events, d.Tick(tick)...)
	}

	if !comp.enteredCategories["heavy_industry"] {
		t.Fatal("the starting mill's category should count as already entered")
	}
	// The only buildable category is the one the rival started in, so no
	// expansion may ever read as a market entry.
	for _, ev := range events {
		if ev.Type == EventMarketEntry {
			t.Fatalf("expansion inside the starting category reported as entry: %+v", ev)
		}
	}
}

func TestSameSeedSameDecisions(t *testing.T) {
	run := func() ([]Event, float64, float64) {
		d, comp, mkt, _ := testWorld(t, 500000)
		var events []Event
		for tick := uint64(1); tick <= 25; tick++ {
			events = append(events, d.Tick(tick)...)
			mkt.MatchAll(tick)
		}
		return events, comp.TrustWithPlayer, comp.HostilityToPlayer
	}

	ev1, trust1, host1 := run()
	ev2, trust2, host2 := run()
	if !reflect.DeepEqual(ev1, ev2) {
		t.Fatalf("same seed produced different events: %v vs %v", ev1, ev2)
	}
	if trust1 != trust2 || host1 != host2 {
		t.Fatalf("same seed produced different stances: %v/%v vs %v/%v", trust1, host1, trust2, host2)
	}
}
