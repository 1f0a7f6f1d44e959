package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Call is one physical telephony connection
type Call struct {
	ID        string
	Mode      CallMode
	StartedAt time.Time

	mu       sync.RWMutex
	streamID string
	state    TransportState
}

// NewCall creates a call in the connecting state
func NewCall(mode CallMode) *Call {
	return &Call{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now(),
		state:     TransportConnecting,
	}
}

func (c *Call) StreamID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streamID
}

// SetStreamID records the telephony stream identifier sent on start
func (c *Call) SetStreamID(id string) {
	c.mu.Lock()
	c.streamID = id
	c.mu.Unlock()
}

func (c *Call) State() TransportState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState moves the call to state. Closed is final.
func (c *Call) SetState(state TransportState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == TransportClosed {
		return
	}
	c.state = state
}

// AudioFrame is an opaque media chunk, base64 encoded as on the wire
type AudioFrame struct {
	StreamID string
	Payload  string
}
