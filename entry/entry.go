// Package entry models the filesystem metadata records harvested from a
// volume and the per-generation store that owns them.
package entry

import "time"

// RootID is the parent id of entries that sit directly under the volume root.
const RootID uint64 = 0

// Timestamp is a Unix time in nanoseconds. The zero value means the source
// could not provide it.
type Timestamp int64

// TimestampOf converts t, mapping the zero time to an absent timestamp.
func TimestampOf(t time.Time) Timestamp {
	if t.IsZero() {
		return 0
	}
	return Timestamp(t.UnixNano())
}

// Valid reports whether the timestamp was provided.
func (ts Timestamp) Valid() bool { return ts != 0 }

// Time returns the timestamp as a time.Time and whether it is present.
func (ts Timestamp) Time() (time.Time, bool) {
	if ts == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, int64(ts)), true
}

// Entry is one filesystem object. Full paths are derived through Store.
type Entry struct {
	Name        string // leaf name
	Size        uint64
	IsDirectory bool
	Created     Timestamp
	Modified    Timestamp
	Accessed    Timestamp
	RecordID    uint64
	ParentID    uint64
}
