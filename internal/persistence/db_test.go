package persistence

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/talgya/magnate/internal/ai"
	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
	"github.com/talgya/magnate/internal/market"
	"github.com/talgya/magnate/internal/production"
	"github.com/talgya/magnate/internal/sim"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "magnate.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleState() sim.State {
	return sim.State{
		Tick: 42,
		Companies: []company.Company{
			{
				ID: 1, Name: "Meridian Industrial", Cash: 184250.75,
				Inventory: map[catalog.GoodsID]*company.Stock{
					"iron-ore": {Quantity: 1500, ReservedForProduction: 100, AvgCost: 10},
					"steel":    {Quantity: 60, ReservedForSale: 20, AvgCost: 96.4},
				},
			},
			{
				ID: 2, Name: "Ferrum Group", Cash: 9800, AI: true,
				Inventory: map[catalog.GoodsID]*company.Stock{
					"iron-ore": {Quantity: 160, AvgCost: 0},
				},
			},
		},
		Competitors: []sim.CompetitorState{
			{CompanyID: 2, Personality: "monopolist", Trust: 12.5, Hostility: -3},
		},
		Buildings: []production.Building{
			{
				ID: 1, DefinitionID: "steel-mill", Owner: 1,
				Status: production.StatusOperational,
				Slots: []production.SlotState{
					{SlotID: "furnace", ActiveMethodID: "smelting", Progress: 2, AccruedCost: 2160},
				},
			},
			{
				ID: 2, DefinitionID: "iron-mine", Owner: 2,
				Status: production.StatusUnderConstruction, ConstructionProgress: 3,
				Slots: []production.SlotState{
					{SlotID: "pit", ActiveMethodID: "surface"},
				},
			},
		},
		Orders: []market.Order{
			{ID: 3, CompanyID: 1, Goods: "steel", Side: market.Sell, Price: 110,
				OriginalQty: 50, RemainingQty: 20, Status: market.StatusOpen, CreatedTick: 40},
			{ID: 7, CompanyID: 0, Goods: "steel", Side: market.Buy, Price: 126,
				OriginalQty: 20, RemainingQty: 20, Status: market.StatusOpen, CreatedTick: 42},
		},
		Prices: map[catalog.GoodsID]float64{"iron-ore": 9.25, "steel": 117.5},
		AutoTrade: map[catalog.GoodsID]sim.AutoTradePolicy{
			"iron-ore": {
				AutoBuy: sim.AutoBuyRule{Enabled: true, TriggerThreshold: 200, TargetStock: 800, MaxPriceMultiplier: 1.2},
			},
		},
		Events: []ai.Event{
			{CompanyID: 2, Type: ai.EventExpansion, Severity: ai.SeverityModerate, Tick: 17,
				Detail: "Ferrum Group broke ground on a new Iron Mine"},
			{CompanyID: 2, Type: ai.EventPriceWarStart, Severity: ai.SeverityMajor, Tick: 31,
				Detail: "undercut by 26% on steel"},
		},
	}
}

func TestHasStateOnEmptyDB(t *testing.T) {
	db := openTestDB(t)
	has, err := db.HasState()
	if err != nil {
		t.Fatalf("has state: %v", err)
	}
	if has {
		t.Fatal("fresh database should report no saved world")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	st := sampleState()

	if err := db.SaveState(st); err != nil {
		t.Fatalf("save: %v", err)
	}
	has, err := db.HasState()
	if err != nil || !has {
		t.Fatalf("state should exist after save: has=%v err=%v", has, err)
	}

	got, err := db.LoadState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(st, got) {
		t.Fatalf("round trip diverged:\n saved: %+v\nloaded: %+v", st, got)
	}
}

func TestSaveIsFullReplace(t *testing.T) {
	db := openTestDB(t)
	st := sampleState()
	if err := db.SaveState(st); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// A later, smaller world fully replaces the earlier one.
	st.Tick = 100
	st.Companies = st.Companies[:1]
	st.Competitors = nil
	st.Buildings = st.Buildings[:1]
	st.Orders = nil
	st.Events = nil
	delete(st.AutoTrade, "iron-ore")
	if err := db.SaveState(st); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := db.LoadState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Tick != 100 {
		t.Fatalf("tick: got %d", got.Tick)
	}
	if len(got.Companies) != 1 || len(got.Buildings) != 1 {
		t.Fatalf("stale rows survived: %d companies, %d buildings", len(got.Companies), len(got.Buildings))
	}
	if len(got.Competitors) != 0 || len(got.Orders) != 0 || len(got.Events) != 0 || len(got.AutoTrade) != 0 {
		t.Fatalf("cleared tables not empty: %+v", got)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveMeta("world_name", "Magnate"); err != nil {
		t.Fatalf("save meta: %v", err)
	}
	if err := db.SaveMeta("world_name", "Magnate II"); err != nil {
		t.Fatalf("replace meta: %v", err)
	}
	v, err := db.GetMeta("world_name")
	if err != nil {
		t.Fatalf("get meta: %v", err)
	}
	if v != "Magnate II" {
		t.Fatalf("meta value: got %q", v)
	}
}
