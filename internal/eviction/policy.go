package eviction

import (
	"fmt"

	"goflare.io/stash/config"
	"goflare.io/stash/internal/entry"
)

// Comparator reports whether a should be evicted before b.
type Comparator func(a, b *entry.Entry) bool

// ComparatorFor returns the victim ordering for the given policy.
func ComparatorFor(policy config.Policy) (Comparator, error) {
	switch policy {
	case config.PolicyLRU:
		return lruLess, nil
	case config.PolicyLFU:
		return lfuLess, nil
	case config.PolicyPriority:
		return priorityLess, nil
	case config.PolicyTTLProximity:
		return ttlProximityLess, nil
	default:
		return nil, fmt.Errorf("unknown eviction policy %q", policy)
	}
}

func lruLess(a, b *entry.Entry) bool {
	return a.LastAccessedAt.Before(b.LastAccessedAt)
}

func lfuLess(a, b *entry.Entry) bool {
	return a.AccessCount < b.AccessCount
}

func priorityLess(a, b *entry.Entry) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() < b.Priority.Rank()
	}
	return a.LastAccessedAt.Before(b.LastAccessedAt)
}

func ttlProximityLess(a, b *entry.Entry) bool {
	return a.ExpiresAt().Before(b.ExpiresAt())
}
