package sim

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/market"
)

// AutoBuyRule restocks a goods when holdings fall below the trigger.
type AutoBuyRule struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	TriggerThreshold   int     `json:"trigger_threshold" yaml:"trigger_threshold"`
	TargetStock        int     `json:"target_stock" yaml:"target_stock"`
	MaxPriceMultiplier float64 `json:"max_price_multiplier" yaml:"max_price_multiplier"`
}

// AutoSellRule sells holdings above the trigger down to the reserve.
type AutoSellRule struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	TriggerThreshold   int     `json:"trigger_threshold" yaml:"trigger_threshold"`
	ReserveStock       int     `json:"reserve_stock" yaml:"reserve_stock"`
	MinPriceMultiplier float64 `json:"min_price_multiplier" yaml:"min_price_multiplier"`
}

// AutoTradePolicy is the player's per-goods standing order automation.
type AutoTradePolicy struct {
	AutoBuy  AutoBuyRule  `json:"auto_buy" yaml:"auto_buy"`
	AutoSell AutoSellRule `json:"auto_sell" yaml:"auto_sell"`
}

// SetAutoTrade installs or replaces the policy for one goods. A nil policy
// removes it.
func (s *Simulation) SetAutoTrade(goods catalog.GoodsID, policy *AutoTradePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Goods.Get(goods); !ok {
		return fmt.Errorf("%w: %q", market.ErrUnknownGoods, goods)
	}
	if policy == nil {
		delete(s.autoTrade, goods)
		return nil
	}
	if policy.AutoBuy.Enabled && policy.AutoBuy.MaxPriceMultiplier <= 0 {
		return fmt.Errorf("auto-buy for %q: max price multiplier must be positive", goods)
	}
	if policy.AutoSell.Enabled && policy.AutoSell.MinPriceMultiplier <= 0 {
		return fmt.Errorf("auto-sell for %q: min price multiplier must be positive", goods)
	}
	p := *policy
	s.autoTrade[goods] = &p
	return nil
}

// AutoTradePolicies returns the current policy table.
func (s *Simulation) AutoTradePolicies() map[catalog.GoodsID]AutoTradePolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[catalog.GoodsID]AutoTradePolicy, len(s.autoTrade))
	for id, p := range s.autoTrade {
		out[id] = *p
	}
	return out
}

// evalAutoTrade runs the player's policies once per tick, synthesizing
// orders. Each synthesized action is logged. Caller holds the lock.
func (s *Simulation) evalAutoTrade(tick uint64) {
	player, ok := s.Companies.Get(s.PlayerID)
	if !ok {
		return
	}

	ids := make([]catalog.GoodsID, 0, len(s.autoTrade))
	for id := range s.autoTrade {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		p := s.autoTrade[id]
		held := player.Quantity(id)

		if p.AutoBuy.Enabled && held < p.AutoBuy.TriggerThreshold {
			qty := p.AutoBuy.TargetStock - held
			price := s.Market.Price(id) * p.AutoBuy.MaxPriceMultiplier
			if qty > 0 && price > 0 {
				if o, err := s.Market.Submit(tick, s.PlayerID, id, market.Buy, price, qty); err != nil {
					slog.Warn("auto-buy rejected", "goods", id, "quantity", qty, "error", err)
				} else {
					slog.Info("auto-buy order placed",
						"goods", id, "order", o.ID, "quantity", qty, "price", price, "held", held)
				}
			}
		}

		if p.AutoSell.Enabled && held > p.AutoSell.TriggerThreshold {
			qty := held - p.AutoSell.ReserveStock
			if avail := player.Available(id); qty > avail {
				qty = avail
			}
			price := s.Market.Price(id) * p.AutoSell.MinPriceMultiplier
			if qty > 0 && price > 0 {
				if o, err := s.Market.Submit(tick, s.PlayerID, id, market.Sell, price, qty); err != nil {
					slog.Warn("auto-sell rejected", "goods", id, "quantity", qty, "error", err)
				} else {
					slog.Info("auto-sell order placed",
						"goods", id, "order", o.ID, "quantity", qty, "price", price, "held", held)
				}
			}
		}
	}
}
