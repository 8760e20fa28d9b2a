package supervisor

import "github.com/devicelab/controller/internal/core/domain"

// maxRingEntries is the per-server log ring ceiling after filtering
// (spec.md §3, §5).
const maxRingEntries = 500

// logRing is a bounded FIFO of post-filter log lines with newest-wins
// dedup against the most recently retained line (spec.md §4.4 "After all
// rules, skip if identical to the most recent retained line").
type logRing struct {
	entries []*domain.LogEntry
}

// append adds entry unless it duplicates the most recent retained entry,
// evicting the oldest entry once the ring is full. Reports whether entry
// was actually appended.
func (r *logRing) append(entry *domain.LogEntry) bool {
	if n := len(r.entries); n > 0 && r.entries[n-1].Message == entry.Message {
		return false
	}
	r.entries = append(r.entries, entry)
	if len(r.entries) > maxRingEntries {
		r.entries = r.entries[len(r.entries)-maxRingEntries:]
	}
	return true
}

// snapshot returns a copy of the ring's current contents.
func (r *logRing) snapshot() []*domain.LogEntry {
	out := make([]*domain.LogEntry, len(r.entries))
	for i, e := range r.entries {
		cp := *e
		out[i] = &cp
	}
	return out
}

// clear empties the ring.
func (r *logRing) clear() { r.entries = nil }
