package relay

// Telephony media stream event names
const (
	TelephonyEventConnected = "connected"
	TelephonyEventStart     = "start"
	TelephonyEventMedia     = "media"
	TelephonyEventStop      = "stop"
	TelephonyEventMark      = "mark"
)

// TelephonyMessage is an inbound media stream frame
type TelephonyMessage struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
}

type StartPayload struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type MediaPayload struct {
	Payload string `json:"payload"`
	Track   string `json:"track,omitempty"`
}

// MediaMessage carries model audio back to the caller
type MediaMessage struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     MediaPayload `json:"media"`
}

func newMediaMessage(streamSid, payload string) MediaMessage {
	return MediaMessage{Event: TelephonyEventMedia, StreamSid: streamSid, Media: MediaPayload{Payload: payload}}
}
