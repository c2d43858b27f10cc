// Package ai drives the competitor companies: personality-weighted order
// flow, production adjustments, strategic events, and the bounded
// trust/hostility accumulators toward the player.
package ai

import "fmt"

// Personality is the closed set of competitor temperaments. Decision logic
// switches exhaustively over it, so adding a personality is a compile-time
// checked extension.
type Personality uint8

const (
	Monopolist Personality = iota
	TrendSurfer
	OldMoney
	Innovator
	CostLeader
)

// ParsePersonality converts a stored string back to a Personality.
func ParsePersonality(s string) (Personality, error) {
	switch s {
	case "monopolist":
		return Monopolist, nil
	case "trend_surfer":
		return TrendSurfer, nil
	case "old_money":
		return OldMoney, nil
	case "innovator":
		return Innovator, nil
	case "cost_leader":
		return CostLeader, nil
	}
	return 0, fmt.Errorf("unknown personality %q", s)
}

// String returns the wire/storage name.
func (p Personality) String() string {
	switch p {
	case Monopolist:
		return "monopolist"
	case TrendSurfer:
		return "trend_surfer"
	case OldMoney:
		return "old_money"
	case Innovator:
		return "innovator"
	case CostLeader:
		return "cost_leader"
	}
	return "unknown"
}

// Weights are the numeric parameters a personality carries.
type Weights struct {
	// Aggressiveness scales order sizing and how hard prices are pushed.
	Aggressiveness float64
	// RiskTolerance scales the probability of strategic moves (price wars,
	// expansions, supply blocks).
	RiskTolerance float64
	// TrustSensitivity scales trust/hostility adjustments per trigger.
	TrustSensitivity float64
	// OrderSize is the fraction of surplus stock offered per tick.
	OrderSize float64
	// SellSkew shifts sell prices relative to market (negative undercuts).
	SellSkew float64
	// BuyPremium shifts buy prices above market to get filled.
	BuyPremium float64
	// SwitchAffinity scales the appetite for switching production methods.
	SwitchAffinity float64
}

// Params returns the weighting parameters for the personality.
func (p Personality) Params() Weights {
	switch p {
	case Monopolist:
		return Weights{
			Aggressiveness:   0.8,
			RiskTolerance:    0.7,
			TrustSensitivity: 0.9,
			OrderSize:        0.8,
			SellSkew:         0.04,
			BuyPremium:       0.06,
			SwitchAffinity:   0.3,
		}
	case TrendSurfer:
		return Weights{
			Aggressiveness:   0.6,
			RiskTolerance:    0.8,
			TrustSensitivity: 0.5,
			OrderSize:        0.7,
			SellSkew:         -0.02,
			BuyPremium:       0.08,
			SwitchAffinity:   0.7,
		}
	case OldMoney:
		return Weights{
			Aggressiveness:   0.3,
			RiskTolerance:    0.2,
			TrustSensitivity: 0.4,
			OrderSize:        0.4,
			SellSkew:         0.01,
			BuyPremium:       0.03,
			SwitchAffinity:   0.1,
		}
	case Innovator:
		return Weights{
			Aggressiveness:   0.5,
			RiskTolerance:    0.6,
			TrustSensitivity: 0.5,
			OrderSize:        0.6,
			SellSkew:         -0.01,
			BuyPremium:       0.05,
			SwitchAffinity:   1.0,
		}
	case CostLeader:
		return Weights{
			Aggressiveness:   0.7,
			RiskTolerance:    0.4,
			TrustSensitivity: 0.6,
			OrderSize:        0.9,
			SellSkew:         -0.05,
			BuyPremium:       0.02,
			SwitchAffinity:   0.5,
		}
	}
	// Unreachable for the closed set; neutral fallback keeps a corrupted
	// save from crashing the tick.
	return Weights{Aggressiveness: 0.5, RiskTolerance: 0.5, TrustSensitivity: 0.5, OrderSize: 0.5}
}
