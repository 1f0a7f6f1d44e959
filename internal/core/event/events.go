package event

import (
	"time"

	"github.com/ClareAI/astra-call-relay/internal/domain"
)

// Tracked event names
const (
	OutboundCallAnswered     = "Outbound Call Answered"
	MessageReceived          = "Message Received"
	AssistantInteractionSent = "Assistant Interaction Sent"
	AppointmentBooked        = "Appointment Booked"
	InsuranceQuoteStarted    = "Insurance Quote Started"
	OutboundCallCompleted    = "Outbound Call Completed"
)

// Ack acknowledges an accepted event. It is what tools hand back to the model.
type Ack struct {
	MessageID  string       `json:"messageId"`
	UserID     string       `json:"userId"`
	Event      string       `json:"event"`
	Properties domain.JSONB `json:"properties"`
	Timestamp  time.Time    `json:"timestamp"`
}
