package registry

import (
	"sort"
	"sync"
	"time"
)

// Entry pairs a client identifier with the time its latest heartbeat was accepted.
type Entry struct {
	Name     string
	LastSeen time.Time
}

// Registry offers a threadsafe in-memory record of last-seen times per client.
// Entries are never removed.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: map[string]time.Time{}}
}

// Touch stores at as the last-seen time for name, replacing any earlier value.
func (r *Registry) Touch(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = at
}

// LastSeen retrieves the last-seen time for name and a boolean indicating its presence.
func (r *Registry) LastSeen(name string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.entries[name]
	return at, ok
}

// Len reports the number of distinct identifiers seen so far.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns a point-in-time copy of every entry, sorted by name.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for name, at := range r.entries {
		out = append(out, Entry{Name: name, LastSeen: at})
	}
	r.mu.RUnlock()

	sortEntries(out)
	return out
}

// Silent returns the entries whose last heartbeat is older than threshold
// relative to now, sorted by name.
func (r *Registry) Silent(threshold time.Duration, now time.Time) []Entry {
	cutoff := now.Add(-threshold)

	r.mu.RLock()
	var out []Entry
	for name, at := range r.entries {
		if at.Before(cutoff) {
			out = append(out, Entry{Name: name, LastSeen: at})
		}
	}
	r.mu.RUnlock()

	sortEntries(out)
	return out
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
}
