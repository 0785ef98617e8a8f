package entry

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateRecordID = errors.New("duplicate record id")
	ErrCycleDetected     = errors.New("cycle detected in parent chain")
	ErrDanglingParent    = errors.New("parent record missing")
	ErrNotFound          = errors.New("record not found")
)

// PathError reports a structural problem found while resolving a path.
type PathError struct {
	RecordID uint64 // record whose path was requested
	At       uint64 // record where resolution stopped
	Err      error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("resolving path of record %d: %v at record %d", e.RecordID, e.Err, e.At)
}

func (e *PathError) Unwrap() error { return e.Err }

// WarningKind classifies a structural warning attached to a store.
type WarningKind int

const (
	WarnDanglingParent WarningKind = iota
	WarnCycle
	WarnDuplicate
)

func (k WarningKind) String() string {
	switch k {
	case WarnDanglingParent:
		return "dangling-parent"
	case WarnCycle:
		return "cycle"
	case WarnDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Warning is a non-fatal structural condition found in a feed.
type Warning struct {
	Kind     WarningKind
	RecordID uint64
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: record %d", w.Kind, w.RecordID)
}
