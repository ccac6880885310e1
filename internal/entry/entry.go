package entry

import (
	"encoding/json"
	"fmt"
	"time"
)

// Priority is the eviction-resistance weight of an entry. Higher priorities
// are evicted later; Critical entries are only evicted as a last resort.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "medium"
}

// Rank returns the eviction ordering weight (lower evicts first).
func (p Priority) Rank() int {
	return int(p)
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParsePriority(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePriority converts a priority name into a Priority value.
func ParsePriority(name string) (Priority, error) {
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return PriorityMedium, fmt.Errorf("unknown priority %q", name)
}

// Entry is the unit of storage: a serialized payload plus the metadata the
// eviction and expiry machinery depends on. The persisted form is the JSON
// envelope of this struct, with the payload base64-encoded.
type Entry struct {
	Key            string        `json:"key"`
	Payload        []byte        `json:"payload"`
	Size           int64         `json:"size_bytes"`
	RawSize        int64         `json:"raw_size_bytes"`
	CreatedAt      time.Time     `json:"created_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	TTL            time.Duration `json:"ttl"`
	AccessCount    int64         `json:"access_count"`
	Priority       Priority      `json:"priority"`
	Compressed     bool          `json:"compressed"`
}

// New creates an Entry with fresh timestamps and a zero access count.
func New(key string, payload []byte, rawSize int64, ttl time.Duration, priority Priority, compressed bool) *Entry {
	now := time.Now()
	return &Entry{
		Key:            key,
		Payload:        payload,
		Size:           int64(len(payload)),
		RawSize:        rawSize,
		CreatedAt:      now,
		LastAccessedAt: now,
		TTL:            ttl,
		Priority:       priority,
		Compressed:     compressed,
	}
}

// ExpiresAt returns the instant the entry becomes logically dead.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// IsExpired reports whether the entry is logically dead at now.
// An entry with a non-positive TTL never expires.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) > e.TTL
}

// Touch records a successful read.
func (e *Entry) Touch(now time.Time) {
	e.AccessCount++
	e.LastAccessedAt = now
}

// Meta returns a copy of the entry without its payload, for the in-memory
// index.
func (e *Entry) Meta() *Entry {
	meta := *e
	meta.Payload = nil
	return &meta
}

// Marshal encodes the entry into its persisted envelope form.
func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a persisted envelope. Callers treat a failure here as a
// corrupt entry, never as a fatal error.
func Unmarshal(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode entry envelope: %w", err)
	}
	e.Size = int64(len(e.Payload))
	return &e, nil
}
