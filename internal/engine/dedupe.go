package engine

import "time"

// Recipient is one deduplicated send target: a unique token plus the
// owner record chosen to represent it.
type Recipient struct {
	Token           string
	OwnerUserID     string
	LastOpenedAppAt *time.Time
}

// Dedupe collapses candidates sharing a token into one recipient each,
// keeping the owner with the strictly latest LastOpenedAppAt. A missing
// timestamp never overrides an existing entry, and on equal timestamps
// the first-seen owner wins. Output preserves first-seen token order so
// downstream batching stays deterministic.
func Dedupe(candidates []Recipient) []Recipient {
	byToken := make(map[string]int, len(candidates))
	out := make([]Recipient, 0, len(candidates))

	for _, c := range candidates {
		i, seen := byToken[c.Token]
		if !seen {
			byToken[c.Token] = len(out)
			out = append(out, c)
			continue
		}
		if c.LastOpenedAppAt == nil {
			continue
		}
		cur := out[i].LastOpenedAppAt
		if cur == nil || c.LastOpenedAppAt.After(*cur) {
			out[i] = c
		}
	}
	return out
}
