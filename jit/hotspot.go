package jit

import (
	"sync"
	"sync/atomic"

	"github.com/chazu/pyrite/vm"
)

// HotspotTracker counts frame entries per code block. Entries are keyed by
// ByteCode.ID so the table never keeps bytecode alive; the Manager evicts
// them through Forget once the bytecode is collected.
type HotspotTracker struct {
	counts sync.Map // uint64 -> *atomic.Uint64
}

// NewHotspotTracker creates an empty tracker.
func NewHotspotTracker() *HotspotTracker {
	return &HotspotTracker{}
}

// Record counts one entry into bc and returns the new count.
func (h *HotspotTracker) Record(bc *vm.ByteCode) int {
	val, _ := h.counts.LoadOrStore(bc.ID(), new(atomic.Uint64))
	return int(val.(*atomic.Uint64).Add(1))
}

// Count returns how many entries into bc have been recorded.
func (h *HotspotTracker) Count(bc *vm.ByteCode) int {
	if val, ok := h.counts.Load(bc.ID()); ok {
		return int(val.(*atomic.Uint64).Load())
	}
	return 0
}

// Forget drops the counter for a code id.
func (h *HotspotTracker) Forget(id uint64) {
	h.counts.Delete(id)
}

// Len returns the number of tracked code blocks.
func (h *HotspotTracker) Len() int {
	n := 0
	h.counts.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
