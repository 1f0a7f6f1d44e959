package openai

import "encoding/json"

// Realtime server event types the relay reacts to
const (
	EventResponseAudioDelta = "response.audio.delta"
	EventSessionUpdated     = "session.updated"
	EventError              = "error"
)

// logEventTypes are diagnostic events logged at info level. session.updated is handled separately.
var logEventTypes = map[string]struct{}{
	"response.content.done":             {},
	"rate_limits.updated":               {},
	"response.done":                     {},
	"input_audio_buffer.committed":      {},
	"input_audio_buffer.speech_stopped": {},
	"input_audio_buffer.speech_started": {},
	"session.created":                   {},
}

// IsLoggedEvent reports whether a realtime event type is on the diagnostic allow-list
func IsLoggedEvent(eventType string) bool {
	_, ok := logEventTypes[eventType]
	return ok
}

// ServerEvent is the subset of a realtime server event the relay reads
type ServerEvent struct {
	Type  string          `json:"type"`
	Delta string          `json:"delta,omitempty"`
	Error json.RawMessage `json:"error,omitempty"`
}

// ParseServerEvent decodes a realtime frame
func ParseServerEvent(data []byte) (*ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
