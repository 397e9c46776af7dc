package trace

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// dedupKey computes the dedup key described in the glossary: event-id
// when present, else (span-id, type, timestamp). The key is hashed with
// xxhash rather than kept as a formatted string — this set is checked on
// every event append in the ingest hot path, and xxhash over a small
// stack-allocated byte slice is materially cheaper than a crypto hash or
// a map[string]struct{} keyed by a concatenated string.
func dedupKey(e Event) uint64 {
	h := xxhash.New()
	if e.EventID != "" {
		h.WriteString("id:")
		h.WriteString(e.EventID)
		return h.Sum64()
	}
	h.WriteString("sk:")
	h.WriteString(e.SpanID)
	h.WriteString("|")
	h.WriteString(string(e.Type))
	h.WriteString("|")
	h.WriteString(strconv.FormatInt(e.Timestamp.UnixNano(), 10))
	return h.Sum64()
}
