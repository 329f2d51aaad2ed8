package alert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the pub/sub counterpart of Alert. It serializes to a flat
// JSON envelope and is routed to a channel derived from its type.
type Event struct {
	EventID   string            `json:"event_id"`
	Type      Type              `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	ModelID   string            `json:"model_id,omitempty"`
	ModelName string            `json:"model_name,omitempty"`
	Payload   map[string]any    `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event with a generated ID and the current UTC time.
func NewEvent(eventType Type, source string) *Event {
	return &Event{
		EventID:   "evt_" + uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Payload:   map[string]any{},
		Metadata:  map[string]string{},
	}
}

// channelBuckets maps event types to their pub/sub channel bucket.
// Types without an entry land in the "general" bucket.
var channelBuckets = map[Type]string{
	TypeAssessmentCompleted:  "assessments",
	TypeViolationDetected:    "violations",
	TypeRemediationCompleted: "remediations",
	TypeScoreChanged:         "scores",
}

// ChannelAll is the bucket that receives every event regardless of type.
const ChannelAll = "all"

// Channel resolves the pub/sub channel name for this event under the
// given prefix, e.g. "compliance:violations".
func (e *Event) Channel(prefix string) string {
	bucket, ok := channelBuckets[e.Type]
	if !ok {
		bucket = "general"
	}
	return fmt.Sprintf("%s:%s", prefix, bucket)
}

// ChannelFor resolves the channel name for an event type under a prefix.
func ChannelFor(eventType Type, prefix string) string {
	return (&Event{Type: eventType}).Channel(prefix)
}

// Marshal serializes the event to its JSON wire envelope.
func (e *Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", e.EventID, err)
	}
	return data, nil
}

// UnmarshalEvent deserializes a wire envelope into an Event.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}
	if e.EventID == "" || e.Type == "" {
		return nil, fmt.Errorf("event envelope missing event_id or event_type")
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	return &e, nil
}
