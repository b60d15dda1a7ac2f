package recipients

import (
	"sync"
	"time"
)

// Picker holds resolved entries, the active criteria and the user's
// selection. The selection is always a subset of the filtered entries:
// changing criteria intersects it with the new filtered set and never adds
// entries to it.
type Picker struct {
	mu       sync.RWMutex
	loc      *time.Location
	entries  []Entry
	criteria Criteria
	filtered []Entry
	selected map[string]bool
}

// NewPicker creates a picker whose criteria enable every status and service
// present in entries. Nothing is selected.
func NewPicker(entries []Entry, loc *time.Location) *Picker {
	if loc == nil {
		loc = time.Local
	}
	p := &Picker{
		loc:      loc,
		entries:  entries,
		criteria: Permissive(entries),
		selected: make(map[string]bool),
	}
	p.recomputeLocked()
	return p
}

// SetEntries replaces the entries and resets the criteria to permissive.
// Selected channels that are still present stay selected.
func (p *Picker) SetEntries(entries []Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = entries
	p.criteria = Permissive(entries)
	p.recomputeLocked()
}

// SetCriteria applies new criteria and returns the filtered entries.
func (p *Picker) SetCriteria(c Criteria) []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.criteria = c
	p.recomputeLocked()
	return append([]Entry(nil), p.filtered...)
}

func (p *Picker) recomputeLocked() {
	p.filtered = Filter(p.entries, p.criteria, p.loc)
	visible := make(map[string]bool, len(p.filtered))
	for _, e := range p.filtered {
		visible[e.ChannelID] = true
	}
	for id := range p.selected {
		if !visible[id] {
			delete(p.selected, id)
		}
	}
}

// Criteria returns the active criteria.
func (p *Picker) Criteria() Criteria {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.criteria
}

// Entries returns every resolved entry.
func (p *Picker) Entries() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Entry(nil), p.entries...)
}

// Filtered returns the entries passing the active criteria.
func (p *Picker) Filtered() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Entry(nil), p.filtered...)
}

// Toggle flips the selection of a filtered channel. It returns the new state;
// channels outside the filtered set cannot be selected.
func (p *Picker) Toggle(channelID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected[channelID] {
		delete(p.selected, channelID)
		return false
	}
	for _, e := range p.filtered {
		if e.ChannelID == channelID {
			p.selected[channelID] = true
			return true
		}
	}
	return false
}

// Select marks the given channels selected, ignoring any outside the filtered set.
func (p *Picker) Select(channelIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	want := make(map[string]bool, len(channelIDs))
	for _, id := range channelIDs {
		want[id] = true
	}
	for _, e := range p.filtered {
		if want[e.ChannelID] {
			p.selected[e.ChannelID] = true
		}
	}
}

// SelectAll selects every filtered entry.
func (p *Picker) SelectAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.filtered {
		p.selected[e.ChannelID] = true
	}
}

// Clear deselects everything.
func (p *Picker) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.selected)
}

// IsSelected reports whether channelID is selected.
func (p *Picker) IsSelected(channelID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selected[channelID]
}

// Selected returns the selected entries in filtered order.
func (p *Picker) Selected() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, 0, len(p.selected))
	for _, e := range p.filtered {
		if p.selected[e.ChannelID] {
			out = append(out, e)
		}
	}
	return out
}
