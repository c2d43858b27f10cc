package market

import (
	"sort"

	"github.com/talgya/magnate/internal/company"
)

// shareWindow is a fixed-capacity ring of per-tick sold volume per company.
// One slot per tick; advancing past the window overwrites the oldest slot.
type shareWindow struct {
	slots []map[company.ID]shareSlot
	head  int
}

type shareSlot struct {
	volume   int
	turnover float64
}

func newShareWindow(ticks int) *shareWindow {
	if ticks < 1 {
		ticks = 1
	}
	return &shareWindow{slots: make([]map[company.ID]shareSlot, ticks)}
}

// advance moves the window forward one tick, clearing the slot it lands on.
func (w *shareWindow) advance() {
	w.head = (w.head + 1) % len(w.slots)
	w.slots[w.head] = nil
}

// add records sold quantity and turnover for the current tick.
func (w *shareWindow) add(id company.ID, qty int, turnover float64) {
	slot := w.slots[w.head]
	if slot == nil {
		slot = make(map[company.ID]shareSlot)
		w.slots[w.head] = slot
	}
	s := slot[id]
	s.volume += qty
	s.turnover += turnover
	slot[id] = s
}

// ShareEntry is one company's slice of a goods' trailing-window trade volume.
type ShareEntry struct {
	CompanyID company.ID `json:"company_id"`
	Volume    int        `json:"volume"`
	Turnover  float64    `json:"turnover"`
	Share     float64    `json:"share"`
}

// table recomputes the share table from the ring. Entries are sorted by
// share descending, company id ascending on ties.
func (w *shareWindow) table() []ShareEntry {
	totals := make(map[company.ID]shareSlot)
	windowVolume := 0
	for _, slot := range w.slots {
		for id, s := range slot {
			t := totals[id]
			t.volume += s.volume
			t.turnover += s.turnover
			totals[id] = t
			windowVolume += s.volume
		}
	}
	if windowVolume == 0 {
		return nil
	}
	entries := make([]ShareEntry, 0, len(totals))
	for id, t := range totals {
		entries = append(entries, ShareEntry{
			CompanyID: id,
			Volume:    t.volume,
			Turnover:  t.turnover,
			Share:     float64(t.volume) / float64(windowVolume),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Share != entries[j].Share {
			return entries[i].Share > entries[j].Share
		}
		return entries[i].CompanyID < entries[j].CompanyID
	})
	return entries
}

// shareOf returns one company's share, 0 when the window is empty.
func (w *shareWindow) shareOf(id company.ID) float64 {
	for _, e := range w.table() {
		if e.CompanyID == id {
			return e.Share
		}
	}
	return 0
}
