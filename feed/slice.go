package feed

import (
	"context"

	"github.com/lexandro/volindex-mcp/entry"
)

// SliceSource serves a fixed set of entries. Records listed in Failures are
// emitted as record errors after the entries.
type SliceSource struct {
	SourceID string
	Entries  []entry.Entry
	Failures []error
	// Err, when set, is returned instead of scanning.
	Err error
}

// ID returns the source id.
func (s *SliceSource) ID() string { return s.SourceID }

// Scan emits the entries in order.
func (s *SliceSource) Scan(ctx context.Context, emit func(entry.Entry, error) error) error {
	if s.Err != nil {
		return s.Err
	}
	for _, e := range s.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(e, nil); err != nil {
			return err
		}
	}
	for _, f := range s.Failures {
		if err := emit(entry.Entry{}, f); err != nil {
			return err
		}
	}
	return nil
}
