package market

import "sync"

// Directory maps source-assigned subscription handles to instruments.
// The subscription path is the sole writer; the producer goroutine does
// read-only lookups, so a reader-writer lock keeps lookups cheap.
type Directory struct {
	mu      sync.RWMutex
	entries map[int32]Instrument
}

func NewDirectory() *Directory {
	return &Directory{entries: make(map[int32]Instrument)}
}

// Put registers or replaces the instrument for a handle.
func (d *Directory) Put(handle int32, inst Instrument) {
	d.mu.Lock()
	d.entries[handle] = inst
	d.mu.Unlock()
}

// Lookup resolves a handle to its instrument.
func (d *Directory) Lookup(handle int32) (Instrument, bool) {
	d.mu.RLock()
	inst, ok := d.entries[handle]
	d.mu.RUnlock()
	return inst, ok
}

// Remove drops a handle on full unsubscribe.
func (d *Directory) Remove(handle int32) {
	d.mu.Lock()
	delete(d.entries, handle)
	d.mu.Unlock()
}

// Handles returns the currently registered handles, for re-subscription.
func (d *Directory) Handles() []int32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]int32, 0, len(d.entries))
	for h := range d.entries {
		out = append(out, h)
	}
	return out
}

// Len reports the number of registered handles.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
