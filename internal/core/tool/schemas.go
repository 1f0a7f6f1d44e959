package tool

// EmptySchema is used by tools that take no arguments
var EmptySchema = map[string]interface{}{
	"type":       "object",
	"properties": map[string]interface{}{},
}

var ScheduleVaccinationSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"user_id":   map[string]interface{}{"type": "string", "description": "The caller's user id from the call context."},
		"pet_name":  map[string]interface{}{"type": "string"},
		"vaccine":   map[string]interface{}{"type": "string"},
		"date":      map[string]interface{}{"type": "string", "description": "Appointment date, ISO 8601."},
		"time":      map[string]interface{}{"type": "string"},
		"clinic_id": map[string]interface{}{"type": "string"},
	},
	"required": []string{"user_id", "date"},
}

var InsuranceQuoteSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"user_id":   map[string]interface{}{"type": "string", "description": "The caller's user id from the call context."},
		"plan_name": map[string]interface{}{"type": "string", "enum": []string{"Basic Paw Plan", "Comprehensive Care Plan", "Premium Pet Plus Plan"}},
		"pet_name":  map[string]interface{}{"type": "string"},
		"pet_type":  map[string]interface{}{"type": "string"},
	},
	"required": []string{"user_id", "plan_name"},
}
