package domain

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jinzhu/copier"
)

// CallMode represents which actor serves a telephony connection
type CallMode string

const (
	CallModeRawAudio  CallMode = "raw_audio"  // Media stream piped to the realtime model
	CallModeToolAgent CallMode = "tool_agent" // Conversation relay driven by an assistant thread
)

// TransportState tracks a telephony connection
type TransportState string

const (
	TransportConnecting TransportState = "connecting"
	TransportOpen       TransportState = "open"
	TransportClosed     TransportState = "closed"
)

// JSONB is a loosely typed JSON object used for parameters, metadata and event properties
type JSONB map[string]interface{}

// String returns the value under key if it is a string
func (j JSONB) String(key string) string {
	if j == nil {
		return ""
	}
	if v, ok := j[key].(string); ok {
		return v
	}
	return ""
}

// Text returns the value under key rendered as a string. Numbers and booleans
// are formatted, missing or null values yield "".
func (j JSONB) Text(key string) string {
	switch v := j[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Clone returns a shallow copy
func (j JSONB) Clone() JSONB {
	out := make(JSONB, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}

// DeepClone copies j including nested maps and slices. It falls back to a
// shallow copy if the values cannot be copied.
func (j JSONB) DeepClone() JSONB {
	if j == nil {
		return JSONB{}
	}
	out := JSONB{}
	if err := copier.CopyWithOption(&out, j, copier.Option{DeepCopy: true}); err != nil {
		return j.Clone()
	}
	return out
}

// Merge copies every entry of others into a new map, later maps winning
func Merge(maps ...JSONB) JSONB {
	out := JSONB{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// MustJSON marshals v, returning "{}" if it cannot be encoded
func MustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
