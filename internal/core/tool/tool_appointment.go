package tool

import (
	"context"

	"github.com/ClareAI/astra-call-relay/internal/core/event"
	"github.com/ClareAI/astra-call-relay/internal/domain"
)

// ExecuteScheduleVaccination records the booking and hands the event acknowledgment back to the model
func (m *ToolManager) ExecuteScheduleVaccination(ctx context.Context, inv *domain.ToolInvocation) (interface{}, error) {
	return m.sink.Track(ctx, inv.Arguments.Text("user_id"), event.AppointmentBooked, inv.Arguments.Clone())
}
