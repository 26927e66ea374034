package visits

import (
	"encoding/json"
	"errors"
	"fmt"
)

// JobTypeVisitRecorded identifies a visit message on the Pub/Sub topic.
const JobTypeVisitRecorded = "visit_recorded"

// ErrUnknownJobType is returned when a message carries a job type other than
// JobTypeVisitRecorded.
var ErrUnknownJobType = errors.New("unknown job type")

// Message is the Pub/Sub envelope for a recorded visit.
type Message struct {
	JobType string `json:"job_type"`
	Visit   Visit  `json:"visit"`
}

// EncodeMessage wraps a visit in a Message and marshals it.
func EncodeMessage(v Visit) ([]byte, error) {
	return json.Marshal(Message{JobType: JobTypeVisitRecorded, Visit: v})
}

// DecodeMessage parses a visit message.
func DecodeMessage(data []byte) (Visit, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Visit{}, fmt.Errorf("decode visit message: %w", err)
	}
	if msg.JobType != JobTypeVisitRecorded {
		return Visit{}, fmt.Errorf("%w: %q", ErrUnknownJobType, msg.JobType)
	}
	if msg.Visit.SystemID == "" {
		return Visit{}, ErrMissingSystemID
	}
	return msg.Visit, nil
}
