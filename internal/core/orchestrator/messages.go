package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ClareAI/astra-call-relay/internal/domain"
)

// Inbound message types sent by the conversation relay
const (
	MessageTypeSetup  = "setup"
	MessageTypePrompt = "prompt"
)

var (
	ErrThreadNotInitialized = errors.New("thread not initialized")
	ErrTurnInProgress       = errors.New("turn in progress")
	ErrAlreadySetup         = errors.New("setup already received")
	ErrThreadCreation       = errors.New("thread creation failed") // fatal for the call
	ErrMalformedMessage     = errors.New("malformed message")
)

const threadNotInitializedMessage = "Thread not initialized."

// InboundMessage is any frame received from the conversation relay
type InboundMessage struct {
	Type             string       `json:"type"`
	SessionID        string       `json:"sessionId,omitempty"`
	CustomParameters domain.JSONB `json:"customParameters,omitempty"`
	VoicePrompt      string       `json:"voicePrompt,omitempty"`
}

// TextToken streams assistant text back to the relay
type TextToken struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Last  bool   `json:"last"`
}

// ErrorMessage reports a rejected request to the relay
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newToken(token string, last bool) TextToken {
	return TextToken{Type: "text", Token: token, Last: last}
}

func parseInbound(raw []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return &msg, nil
}
