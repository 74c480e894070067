// Package record decodes ingested performance records and applies them to a
// reporter. It is shared by every input.
package record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/metric"
	"github.com/c360/perfstreams/performance"
	"github.com/c360/perfstreams/pkg/timestamp"
)

// Record is the wire form of one ingested entry. Times are milliseconds
// relative to the reporter's time origin. A mark without startTime is stamped
// with the reporter's current time.
type Record struct {
	Type      string          `json:"entryType"`
	Name      string          `json:"name"`
	StartTime *float64        `json:"startTime,omitempty"`
	Duration  float64         `json:"duration,omitempty"`
	EndTime   float64         `json:"endTime,omitempty"`
	StartMark string          `json:"startMark,omitempty"`
	EndMark   string          `json:"endMark,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`

	ProcessingStart float64 `json:"processingStart,omitempty"`
	ProcessingEnd   float64 `json:"processingEnd,omitempty"`
	InteractionID   uint64  `json:"interactionId,omitempty"`
}

// Recorder is the part of performance.Reporter an input drives.
type Recorder interface {
	Now() time.Duration
	MarkAt(name string, start time.Duration, detail []byte) (performance.Entry, error)
	Measure(name string, opts performance.MeasureOptions) (performance.Entry, error)
	ReportEvent(ev performance.EventTiming) (bool, error)
	ReportLongTask(start, duration time.Duration) (bool, error)
}

var _ Recorder = (*performance.Reporter)(nil)

// Decode parses a single record object or an array of records.
func Decode(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "record", "Decode", "empty payload")
	}

	if data[0] == '[' {
		var recs []Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
				"record", "Decode", "decode record array")
		}
		return recs, nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"record", "Decode", "decode record")
	}
	return []Record{rec}, nil
}

// Apply records rec on r.
func Apply(r Recorder, rec Record) error {
	t, err := performance.ParseEntryType(rec.Type)
	if err != nil {
		return err
	}

	start := time.Duration(0)
	if rec.StartTime != nil {
		start = timestamp.FromMillis(*rec.StartTime)
	}

	switch t {
	case performance.EntryTypeMark:
		if rec.StartTime == nil {
			start = r.Now()
		}
		_, err = r.MarkAt(rec.Name, start, rec.Detail)
		return err

	case performance.EntryTypeMeasure:
		_, err = r.Measure(rec.Name, performance.MeasureOptions{
			Start:     start,
			End:       timestamp.FromMillis(rec.EndTime),
			Duration:  timestamp.FromMillis(rec.Duration),
			StartMark: rec.StartMark,
			EndMark:   rec.EndMark,
			Detail:    rec.Detail,
		})
		return err

	case performance.EntryTypeEvent:
		_, err = r.ReportEvent(performance.EventTiming{
			Name:            rec.Name,
			StartTime:       start,
			Duration:        timestamp.FromMillis(rec.Duration),
			ProcessingStart: timestamp.FromMillis(rec.ProcessingStart),
			ProcessingEnd:   timestamp.FromMillis(rec.ProcessingEnd),
			InteractionID:   rec.InteractionID,
		})
		return err

	default:
		_, err = r.ReportLongTask(start, timestamp.FromMillis(rec.Duration))
		return err
	}
}

// Ingester decodes payloads and applies their records, counting outcomes.
// Bad records are logged and counted, never returned as fatal.
type Ingester struct {
	rec     Recorder
	logger  *slog.Logger
	metrics *metric.Metrics

	accepted atomic.Int64
	rejected atomic.Int64
	invalid  atomic.Int64
}

// NewIngester creates an ingester feeding rec. registry may be nil.
func NewIngester(rec Recorder, logger *slog.Logger, registry *metric.MetricsRegistry) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	in := &Ingester{rec: rec, logger: logger}
	if registry != nil {
		in.metrics = registry.CoreMetrics()
	}
	return in
}

// Handle processes one payload and returns its outcome: Invalid is 1 when
// the payload could not be decoded, otherwise Accepted and Rejected count its
// records. The same outcome is added to the running totals.
func (in *Ingester) Handle(ctx context.Context, source string, data []byte) Stats {
	var res Stats
	if ctx.Err() != nil {
		in.logger.Debug("ingest payload after shutdown", "source", source, "bytes", len(data))
		return res
	}

	recs, err := Decode(data)
	if err != nil {
		res.Invalid = 1
		in.invalid.Add(1)
		in.count("invalid")
		in.logger.Warn("invalid ingest payload", "source", source, "bytes", len(data), "error", err)
		return res
	}

	for i, rec := range recs {
		if err := Apply(in.rec, rec); err != nil {
			res.Rejected++
			in.rejected.Add(1)
			in.count("rejected")
			in.logger.Debug("record rejected",
				"source", source,
				"index", i,
				"type", rec.Type,
				"name", rec.Name,
				"error", err)
			continue
		}
		res.Accepted++
		in.accepted.Add(1)
		in.count("ok")
	}
	return res
}

func (in *Ingester) count(status string) {
	if in.metrics != nil {
		in.metrics.RecordIngest(status)
	}
}

// Stats is a snapshot of ingest counters.
type Stats struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Invalid  int64 `json:"invalid"`
}

// Stats returns current counters. Invalid counts payloads; Accepted and
// Rejected count records.
func (in *Ingester) Stats() Stats {
	return Stats{
		Accepted: in.accepted.Load(),
		Rejected: in.rejected.Load(),
		Invalid:  in.invalid.Load(),
	}
}
