package catalog

import (
	"strings"
	"testing"
)

func goodsDefs() []GoodsDefinition {
	return []GoodsDefinition{
		{ID: "steel", Name: "Steel", Category: "industrial", BasePrice: 120},
		{ID: "iron-ore", Name: "Iron Ore", Category: "raw", BasePrice: 10},
		{ID: "coal", Name: "Coal", Category: "raw", BasePrice: 8},
	}
}

func millDef() BuildingDefinition {
	return BuildingDefinition{
		ID:                "steel-mill",
		Name:              "Steel Mill",
		Category:          "heavy_industry",
		BaseCost:          150000,
		MaintenanceCost:   600,
		MaxWorkers:        80,
		ConstructionTicks: 5,
		ConstructionMaterials: []GoodsAmount{
			{Goods: "steel", Amount: 100},
		},
		Slots: []ProductionSlot{
			{
				ID:              "furnace",
				DefaultMethodID: "basic-smelting",
				Methods: []ProductionMethod{
					{
						ID:            "basic-smelting",
						Inputs:        []GoodsAmount{{Goods: "iron-ore", Amount: 100}, {Goods: "coal", Amount: 40}},
						Outputs:       []GoodsAmount{{Goods: "steel", Amount: 60}},
						TicksRequired: 5,
						LaborRequired: 60,
						PowerRequired: 50,
						Efficiency:    1.0,
					},
				},
			},
		},
	}
}

func TestGoodsCatalogCanonicalOrder(t *testing.T) {
	c, err := NewGoodsCatalog(goodsDefs())
	if err != nil {
		t.Fatalf("new goods catalog: %v", err)
	}
	ids := c.IDs()
	if len(ids) != 3 || ids[0] != "coal" || ids[1] != "iron-ore" || ids[2] != "steel" {
		t.Fatalf("ids should be sorted: %v", ids)
	}
	g, ok := c.Get("steel")
	if !ok || g.BasePrice != 120 {
		t.Fatalf("lookup failed: %+v", g)
	}
	if _, ok := c.Get("plutonium"); ok {
		t.Fatal("unknown goods should not resolve")
	}
}

func TestGoodsCatalogRejectsBadDefs(t *testing.T) {
	cases := []struct {
		name string
		defs []GoodsDefinition
		want string
	}{
		{"duplicate id", append(goodsDefs(), GoodsDefinition{ID: "coal", Name: "Coal", BasePrice: 1}), "duplicate"},
		{"empty id", []GoodsDefinition{{Name: "X", BasePrice: 1}}, "empty id"},
		{"zero price", []GoodsDefinition{{ID: "x", Name: "X"}}, "base price"},
	}
	for _, tc := range cases {
		if _, err := NewGoodsCatalog(tc.defs); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestBuildingCatalogValidates(t *testing.T) {
	goods, err := NewGoodsCatalog(goodsDefs())
	if err != nil {
		t.Fatalf("goods: %v", err)
	}

	c, err := NewBuildingCatalog([]BuildingDefinition{millDef()}, goods)
	if err != nil {
		t.Fatalf("new building catalog: %v", err)
	}
	def, ok := c.Get("steel-mill")
	if !ok {
		t.Fatal("steel-mill should resolve")
	}
	slot, ok := def.Slot("furnace")
	if !ok {
		t.Fatal("furnace slot should resolve")
	}
	if _, ok := slot.Method("basic-smelting"); !ok {
		t.Fatal("default method should resolve")
	}
}

func TestBuildingCatalogRejectsBadDefs(t *testing.T) {
	goods, _ := NewGoodsCatalog(goodsDefs())

	unknownInput := millDef()
	unknownInput.Slots[0].Methods[0].Inputs[0].Goods = "unobtainium"
	if _, err := NewBuildingCatalog([]BuildingDefinition{unknownInput}, goods); err == nil {
		t.Fatal("unknown method input goods should be rejected")
	}

	badDefault := millDef()
	badDefault.Slots[0].DefaultMethodID = "missing"
	if _, err := NewBuildingCatalog([]BuildingDefinition{badDefault}, goods); err == nil {
		t.Fatal("missing default method should be rejected")
	}

	noMethods := millDef()
	noMethods.Slots[0].Methods = nil
	if _, err := NewBuildingCatalog([]BuildingDefinition{noMethods}, goods); err == nil {
		t.Fatal("slot without methods should be rejected")
	}

	zeroTicks := millDef()
	zeroTicks.Slots[0].Methods[0].TicksRequired = 0
	if _, err := NewBuildingCatalog([]BuildingDefinition{zeroTicks}, goods); err == nil {
		t.Fatal("zero ticks_required should be rejected")
	}

	badMaterial := millDef()
	badMaterial.ConstructionMaterials[0].Goods = "unobtainium"
	if _, err := NewBuildingCatalog([]BuildingDefinition{badMaterial}, goods); err == nil {
		t.Fatal("unknown construction material should be rejected")
	}
}
