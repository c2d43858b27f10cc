// Package production advances building instances one tick at a time:
// construction, the operational status machine, production cycles, and
// per-building rolling profitability.
package production

import (
	"fmt"

	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
)

// Status is a building's operational state machine value.
type Status string

const (
	StatusOperational       Status = "operational"
	StatusPaused            Status = "paused"
	StatusLackingInputs     Status = "lacking_inputs"
	StatusLackingEnergy     Status = "lacking_energy"
	StatusLackingWorkers    Status = "lacking_workers"
	StatusUnderConstruction Status = "under_construction"
	StatusWaitingMaterials  Status = "waiting_materials"
	StatusUpgrading         Status = "upgrading"
)

// profitWindow is the number of completed cycles the rolling average covers.
const profitWindow = 5

// ProfitWindow is a fixed-capacity ring of per-cycle income and cost.
type ProfitWindow struct {
	Income [profitWindow]float64 `json:"income"`
	Cost   [profitWindow]float64 `json:"cost"`
	Idx    int                   `json:"idx"`
	Count  int                   `json:"count"`
}

func (w *ProfitWindow) push(income, cost float64) {
	w.Income[w.Idx] = income
	w.Cost[w.Idx] = cost
	w.Idx = (w.Idx + 1) % profitWindow
	if w.Count < profitWindow {
		w.Count++
	}
}

// averages returns mean income and cost over the recorded cycles.
func (w *ProfitWindow) averages() (income, cost float64) {
	if w.Count == 0 {
		return 0, 0
	}
	for i := 0; i < w.Count; i++ {
		income += w.Income[i]
		cost += w.Cost[i]
	}
	return income / float64(w.Count), cost / float64(w.Count)
}

// SlotState is the runtime state of one production slot.
type SlotState struct {
	SlotID         string  `json:"slot_id"`
	ActiveMethodID string  `json:"active_method_id"`
	Progress       int     `json:"progress"`     // ticks advanced in the current cycle
	AccruedCost    float64 `json:"accrued_cost"` // input cost consumed so far this cycle
}

// Building is an owned building instance.
type Building struct {
	ID                   uint64             `json:"id"`
	DefinitionID         catalog.BuildingID `json:"definition_id"`
	Owner                company.ID         `json:"owner"`
	Status               Status             `json:"status"`
	Paused               bool               `json:"paused"`       // explicit player/AI pause
	ConfigError          bool               `json:"config_error"` // terminal diagnostic flag
	ConstructionProgress int                `json:"construction_progress"`
	Slots                []SlotState        `json:"slots"`

	Profit ProfitWindow `json:"profit"`

	def *catalog.BuildingDefinition
}

// Definition returns the building's catalog definition.
func (b *Building) Definition() *catalog.BuildingDefinition {
	return b.def
}

// Profitability returns the rolling average income, cost, and net over the
// last completed cycles.
func (b *Building) Profitability() (income, cost, net float64) {
	income, cost = b.Profit.averages()
	return income, cost, income - cost
}

// SetMethod switches a slot to another of its methods. The slot's in-flight
// cycle is abandoned; already-consumed inputs are not refunded.
func (b *Building) SetMethod(slotID, methodID string) error {
	slot, ok := b.def.Slot(slotID)
	if !ok {
		return fmt.Errorf("building %d: unknown slot %q", b.ID, slotID)
	}
	if _, ok := slot.Method(methodID); !ok {
		return fmt.Errorf("building %d slot %q: unknown method %q", b.ID, slotID, methodID)
	}
	for i := range b.Slots {
		if b.Slots[i].SlotID == slotID {
			b.Slots[i].ActiveMethodID = methodID
			b.Slots[i].Progress = 0
			b.Slots[i].AccruedCost = 0
			return nil
		}
	}
	return fmt.Errorf("building %d: no state for slot %q", b.ID, slotID)
}

// SetPaused sets or clears the explicit pause flag. A config-error pause is
// terminal and cannot be cleared.
func (b *Building) SetPaused(paused bool) {
	if b.ConfigError {
		return
	}
	b.Paused = paused
}
