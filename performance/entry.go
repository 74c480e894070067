package performance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/pkg/timestamp"
)

// EntryType identifies the timeline an entry belongs to.
type EntryType int

const (
	EntryTypeMark EntryType = iota
	EntryTypeMeasure
	EntryTypeEvent
	EntryTypeLongTask

	numEntryTypes = int(EntryTypeLongTask) + 1
)

// EntryTypes lists every entry type in flush order.
func EntryTypes() []EntryType {
	return []EntryType{EntryTypeMark, EntryTypeMeasure, EntryTypeEvent, EntryTypeLongTask}
}

// String returns the wire name of the entry type.
func (t EntryType) String() string {
	switch t {
	case EntryTypeMark:
		return "mark"
	case EntryTypeMeasure:
		return "measure"
	case EntryTypeEvent:
		return "event"
	case EntryTypeLongTask:
		return "longtask"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	return t >= EntryTypeMark && t <= EntryTypeLongTask
}

// ParseEntryType parses a wire name. "long-task" and "longTask" are accepted
// as aliases of "longtask".
func ParseEntryType(s string) (EntryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mark":
		return EntryTypeMark, nil
	case "measure":
		return EntryTypeMeasure, nil
	case "event":
		return EntryTypeEvent, nil
	case "longtask", "long-task", "long_task":
		return EntryTypeLongTask, nil
	}
	return 0, errors.WrapInvalid(
		fmt.Errorf("%w: %q", errors.ErrUnknownEntryType, s),
		"EntryType", "ParseEntryType", "parse entry type")
}

// MarshalText implements encoding.TextMarshaler.
func (t EntryType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, errors.WrapInvalid(errors.ErrUnknownEntryType, "EntryType", "MarshalText",
			fmt.Sprintf("marshal entry type %d", int(t)))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *EntryType) UnmarshalText(b []byte) error {
	parsed, err := ParseEntryType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Entry is one record on the performance timeline. Times are offsets from
// the owning reporter's time origin.
type Entry struct {
	Name      string
	Type      EntryType
	StartTime time.Duration
	Duration  time.Duration

	// Event entries only.
	ProcessingStart time.Duration
	ProcessingEnd   time.Duration
	InteractionID   uint64

	Detail json.RawMessage
}

// EndTime returns StartTime + Duration.
func (e Entry) EndTime() time.Duration {
	return e.StartTime + e.Duration
}

type entryJSON struct {
	Name            string          `json:"name"`
	Type            EntryType       `json:"entryType"`
	StartTime       float64         `json:"startTime"`
	Duration        float64         `json:"duration"`
	ProcessingStart float64         `json:"processingStart,omitempty"`
	ProcessingEnd   float64         `json:"processingEnd,omitempty"`
	InteractionID   uint64          `json:"interactionId,omitempty"`
	Detail          json.RawMessage `json:"detail,omitempty"`
}

// MarshalJSON encodes times as float milliseconds.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Name:            e.Name,
		Type:            e.Type,
		StartTime:       timestamp.Millis(e.StartTime),
		Duration:        timestamp.Millis(e.Duration),
		ProcessingStart: timestamp.Millis(e.ProcessingStart),
		ProcessingEnd:   timestamp.Millis(e.ProcessingEnd),
		InteractionID:   e.InteractionID,
		Detail:          e.Detail,
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = Entry{
		Name:            raw.Name,
		Type:            raw.Type,
		StartTime:       timestamp.FromMillis(raw.StartTime),
		Duration:        timestamp.FromMillis(raw.Duration),
		ProcessingStart: timestamp.FromMillis(raw.ProcessingStart),
		ProcessingEnd:   timestamp.FromMillis(raw.ProcessingEnd),
		InteractionID:   raw.InteractionID,
		Detail:          raw.Detail,
	}
	return nil
}

// EventTiming is a raw event timing report. Name is the event type, for
// example "click" or "keydown".
type EventTiming struct {
	Name            string
	StartTime       time.Duration
	Duration        time.Duration
	ProcessingStart time.Duration
	ProcessingEnd   time.Duration
	InteractionID   uint64
}

// MeasureOptions describes the span of a measure. StartMark and EndMark take
// precedence over Start and End. A zero End means "end at Duration after
// start" when Duration is set, otherwise "now".
type MeasureOptions struct {
	Start     time.Duration
	End       time.Duration
	Duration  time.Duration
	StartMark string
	EndMark   string
	Detail    json.RawMessage
}

// Batch is one flush of newly recorded entries of a single type.
type Batch struct {
	ID        uuid.UUID `json:"id"`
	Type      EntryType `json:"entryType"`
	Entries   []Entry   `json:"entries"`
	Dropped   uint64    `json:"dropped"`
	FlushedAt time.Time `json:"flushedAt"`
}

// NewBatch stamps a batch with a fresh ID.
func NewBatch(t EntryType, entries []Entry, dropped uint64, now time.Time) Batch {
	return Batch{
		ID:        uuid.New(),
		Type:      t,
		Entries:   entries,
		Dropped:   dropped,
		FlushedAt: now.UTC(),
	}
}
