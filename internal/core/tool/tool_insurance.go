package tool

import (
	"context"

	"github.com/ClareAI/astra-call-relay/internal/core/event"
	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/google/uuid"
)

// InsurancePlan is one entry of the static pet insurance catalog
type InsurancePlan struct {
	Name     string   `json:"name"`
	Price    string   `json:"price"`
	Coverage []string `json:"coverage"`
}

var PetInsurancePlans = []InsurancePlan{
	{
		Name:  "Basic Paw Plan",
		Price: "$25/month",
		Coverage: []string{
			"Accident coverage",
			"Emergency vet visits",
			"Prescription medications",
			"Annual wellness exam discount (10%)",
			"24/7 Vet Telehealth Support",
		},
	},
	{
		Name:  "Comprehensive Care Plan",
		Price: "$50/month",
		Coverage: []string{
			"All Basic Paw Plan benefits",
			"Illness coverage",
			"Vaccination reimbursement",
			"Routine dental cleaning",
			"Diagnostic tests (bloodwork, X-rays)",
			"Alternative therapies (acupuncture, physical therapy)",
		},
	},
	{
		Name:  "Premium Pet Plus Plan",
		Price: "$80/month",
		Coverage: []string{
			"All Comprehensive Care Plan benefits",
			"Chronic condition management",
			"Behavioral therapy",
			"Advanced dental procedures",
			"Specialist visits",
			"Emergency boarding costs",
			"Lost pet advertising and reward coverage",
		},
	},
}

// ExecuteGetInsuranceInfo returns the catalog verbatim
func (m *ToolManager) ExecuteGetInsuranceInfo(_ context.Context, _ *domain.ToolInvocation) (interface{}, error) {
	return PetInsurancePlans, nil
}

// ExecuteInsuranceQuote allocates a quote id and records the quote start
func (m *ToolManager) ExecuteInsuranceQuote(ctx context.Context, inv *domain.ToolInvocation) (interface{}, error) {
	props := inv.Arguments.Clone()
	props["quote_id"] = uuid.NewString()
	return m.sink.Track(ctx, inv.Arguments.Text("user_id"), event.InsuranceQuoteStarted, props)
}
