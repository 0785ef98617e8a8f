// Package feed supplies entries to the search layer: the Source contract,
// scan collection with an error budget, and change events.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/lexandro/volindex-mcp/entry"
)

var (
	ErrSourceUnavailable          = errors.New("source unavailable")
	ErrIngestionThresholdExceeded = errors.New("ingestion error threshold exceeded")
	ErrUnknownSource              = errors.New("unknown source")
)

// DefaultErrorThreshold is the tolerated fraction of bad records.
const DefaultErrorThreshold = 0.05

// minRecordsForThreshold is how many records are seen before the error
// fraction is enforced mid-scan.
const minRecordsForThreshold = 100

// Source produces the entries of one volume. Scan calls emit once per record;
// a non-nil err marks a record that could not be read. Emit returns an error
// to stop the scan. Failures of the source as a whole wrap
// ErrSourceUnavailable.
type Source interface {
	ID() string
	Scan(ctx context.Context, emit func(entry.Entry, error) error) error
}

// Op is the kind of a change event.
type Op int

const (
	OpUpsert Op = iota
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one change to a source. Upserts carry the full entry; deletes
// carry only RecordID.
type Event struct {
	Op       Op
	Entry    entry.Entry
	RecordID uint64
}

// Upsert returns an upsert event for e.
func Upsert(e entry.Entry) Event {
	return Event{Op: OpUpsert, Entry: e, RecordID: e.RecordID}
}

// Delete returns a delete event for id.
func Delete(id uint64) Event {
	return Event{Op: OpDelete, RecordID: id}
}

// ScanResult is the outcome of a full scan.
type ScanResult struct {
	SourceID  string
	Entries   []entry.Entry
	TotalSize uint64
	FileCount int
	DirCount  int
	Errors    int
	Duration  time.Duration
}

// EntriesPerSecond returns the scan throughput.
func (r ScanResult) EntriesPerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(len(r.Entries)) / r.Duration.Seconds()
}

// CollectOptions configures Collect.
type CollectOptions struct {
	ErrorThreshold float64 // fraction of bad records tolerated; 0 uses the default
	Logger         *slog.Logger
	ProgressEvery  time.Duration
}

// Collect runs a full scan of src. Bad records are skipped and counted; the
// scan fails with ErrIngestionThresholdExceeded once the error fraction
// passes the threshold, checked after minRecordsForThreshold records and
// again at the end.
func Collect(ctx context.Context, src Source, options CollectOptions) (ScanResult, error) {
	threshold := options.ErrorThreshold
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	progressEvery := options.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = 5 * time.Second
	}
	progress := rate.Sometimes{Interval: progressEvery}

	start := time.Now()
	result := ScanResult{SourceID: src.ID()}
	records := 0
	exceeded := func() error {
		if float64(result.Errors) > threshold*float64(records) {
			return fmt.Errorf("source %s: %d of %d records failed: %w",
				src.ID(), result.Errors, records, ErrIngestionThresholdExceeded)
		}
		return nil
	}

	err := src.Scan(ctx, func(e entry.Entry, recErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		records++
		if recErr != nil {
			result.Errors++
			logger.Debug("skipped record", "source", src.ID(), "error", recErr)
		} else {
			result.Entries = append(result.Entries, e)
			if e.IsDirectory {
				result.DirCount++
			} else {
				result.FileCount++
				result.TotalSize += e.Size
			}
		}
		progress.Do(func() {
			logger.Info("scan progress", "source", src.ID(), "entries", len(result.Entries), "errors", result.Errors)
		})
		if records >= minRecordsForThreshold {
			return exceeded()
		}
		return nil
	})
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}
	if err := exceeded(); err != nil {
		return result, err
	}
	return result, nil
}
