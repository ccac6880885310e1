package store

import (
	"sort"
	"time"

	"goflare.io/stash/internal/entry"
)

// index is the in-memory metadata view of one namespace: every physically
// present entry, payloads stripped. It is authoritative for space
// accounting and eviction ordering between metadata flushes. All access is
// serialized by the owning store's mutex.
type index struct {
	entries map[string]*entry.Entry
	dirty   map[string]struct{}
}

func newIndex() *index {
	return &index{
		entries: make(map[string]*entry.Entry),
		dirty:   make(map[string]struct{}),
	}
}

func (ix *index) get(key string) (*entry.Entry, bool) {
	meta, ok := ix.entries[key]
	return meta, ok
}

func (ix *index) put(meta *entry.Entry) {
	ix.entries[meta.Key] = meta
}

func (ix *index) remove(key string) (*entry.Entry, bool) {
	meta, ok := ix.entries[key]
	if ok {
		delete(ix.entries, key)
		delete(ix.dirty, key)
	}
	return meta, ok
}

func (ix *index) clear() {
	ix.entries = make(map[string]*entry.Entry)
	ix.dirty = make(map[string]struct{})
}

func (ix *index) len() int {
	return len(ix.entries)
}

// liveBytes sums persisted payload sizes of non-expired entries; this is
// the quantity the quota invariant constrains.
func (ix *index) liveBytes(now time.Time) int64 {
	var total int64
	for _, meta := range ix.entries {
		if !meta.IsExpired(now) {
			total += meta.Size
		}
	}
	return total
}

func (ix *index) live(now time.Time) []*entry.Entry {
	out := make([]*entry.Entry, 0, len(ix.entries))
	for _, meta := range ix.entries {
		if !meta.IsExpired(now) {
			out = append(out, meta)
		}
	}
	return out
}

func (ix *index) expiredKeys(now time.Time) []string {
	var out []string
	for key, meta := range ix.entries {
		if meta.IsExpired(now) {
			out = append(out, key)
		}
	}
	return out
}

func (ix *index) liveKeys(now time.Time) []string {
	out := make([]string, 0, len(ix.entries))
	for key, meta := range ix.entries {
		if !meta.IsExpired(now) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func (ix *index) markDirty(key string) {
	ix.dirty[key] = struct{}{}
}

// takeDirty drains the dirty set.
func (ix *index) takeDirty() []string {
	if len(ix.dirty) == 0 {
		return nil
	}
	out := make([]string, 0, len(ix.dirty))
	for key := range ix.dirty {
		out = append(out, key)
	}
	ix.dirty = make(map[string]struct{})
	return out
}

func (ix *index) bounds(now time.Time) (oldest, newest time.Time) {
	for _, meta := range ix.entries {
		if meta.IsExpired(now) {
			continue
		}
		if oldest.IsZero() || meta.CreatedAt.Before(oldest) {
			oldest = meta.CreatedAt
		}
		if newest.IsZero() || meta.CreatedAt.After(newest) {
			newest = meta.CreatedAt
		}
	}
	return oldest, newest
}
