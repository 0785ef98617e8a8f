package feed

import (
	"slices"

	"github.com/lexandro/volindex-mcp/entry"
)

// Diff returns the events that turn before into after: upserts for new or
// changed entries, deletes for missing ones. Upserts follow the order of
// after; deletes follow the order of before.
func Diff(before, after []entry.Entry) []Event {
	old := make(map[uint64]entry.Entry, len(before))
	for _, e := range before {
		old[e.RecordID] = e
	}
	seen := make(map[uint64]struct{}, len(after))

	var events []Event
	for _, e := range after {
		seen[e.RecordID] = struct{}{}
		if prev, ok := old[e.RecordID]; ok && prev == e {
			continue
		}
		events = append(events, Upsert(e))
	}
	for _, e := range before {
		if _, ok := seen[e.RecordID]; !ok {
			events = append(events, Delete(e.RecordID))
		}
	}
	return slices.Clip(events)
}
