package ai

import "github.com/talgya/magnate/internal/company"

// EventType classifies a competitor's strategic action.
type EventType string

const (
	EventPriceWarStart  EventType = "price_war_start"
	EventMarketEntry    EventType = "market_entry"
	EventStrategyChange EventType = "strategy_change"
	EventExpansion      EventType = "expansion"
	EventSupplyBlock    EventType = "supply_block"
)

// Severity grades a competition event.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Event is an append-only record of one AI strategic action.
type Event struct {
	CompanyID company.ID `json:"company_id"`
	Type      EventType  `json:"type"`
	Severity  Severity   `json:"severity"`
	Tick      uint64     `json:"tick"`
	Detail    string     `json:"detail"`
}
