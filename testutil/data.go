package testutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Sample ingest records, one per entry type, in the wire form decoded by
// input/record. Times are milliseconds relative to the reporter's origin.
const (
	MarkRecord     = `{"entryType":"mark","name":"render-start","startTime":5}`
	MeasureRecord  = `{"entryType":"measure","name":"render","startMark":"render-start","duration":12.5}`
	EventRecord    = `{"entryType":"event","name":"click","startTime":40,"duration":150,"processingStart":42,"processingEnd":180,"interactionId":7}`
	LongTaskRecord = `{"entryType":"longtask","startTime":200,"duration":75}`
)

// Payloads that input/record rejects as a whole.
var InvalidPayloads = []string{
	``,
	`   `,
	`{`,
	`not json`,
	`[1,2]`,
}

// RecordArray joins records into one JSON array payload.
func RecordArray(records ...string) []byte {
	return []byte("[" + strings.Join(records, ",") + "]")
}

// Marks returns n mark records named prefix-0 .. prefix-(n-1), one
// millisecond apart.
func Marks(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		rec := map[string]any{
			"entryType": "mark",
			"name":      fmt.Sprintf("%s-%d", prefix, i),
			"startTime": float64(i),
		}
		b, _ := json.Marshal(rec)
		out[i] = string(b)
	}
	return out
}
