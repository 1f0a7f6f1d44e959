package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ClareAI/astra-call-relay/internal/core/event"
	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"go.uber.org/zap"
)

// Tool name constants
const (
	ToolNameScheduleVaccination = "schedule_vaccination"
	ToolNameGetInsuranceInfo    = "get_insurance_info"
	ToolNameInsuranceQuote      = "insurance_quote"
)

const defaultFailureMessage = "There was an error processing your request. Please try again."

/*
Tool Manager - Registry Pattern

To add a new tool, register it in registerBuiltInTools() and implement the executor:

	m.RegisterTool(&ToolDefinition{
	    Name:        "cancel_appointment",
	    Description: "Cancels a booked appointment",
	    Parameters:  UserScopedSchema,
	    Executor:    m.ExecuteCancelAppointment,
	})

Executors return any JSON-serializable value. Errors and panics never leave Dispatch:
they become a {message, success:false} result the model can narrate.
*/

// ToolExecutorFunc executes one invocation with its parsed arguments
type ToolExecutorFunc func(ctx context.Context, inv *domain.ToolInvocation) (interface{}, error)

// ToolDefinition defines a tool with its metadata and execution logic
type ToolDefinition struct {
	Name           string                 // Function name the assistant calls
	Description    string                 // Tool description for the assistant
	Parameters     map[string]interface{} // Function parameters schema
	FailureMessage string                 // Narrated back when the executor fails
	Executor       ToolExecutorFunc
}

// Failure is the structured result of a failed tool execution
type Failure struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ToolManager manages tool definitions, routing, and execution
type ToolManager struct {
	sink             event.Sink
	unsupportedReply bool

	mu       sync.RWMutex
	registry map[string]*ToolDefinition
}

// Option configures the manager
type Option func(*ToolManager)

// WithUnsupportedToolReply makes unknown tools resolve to a failure result instead of nothing
func WithUnsupportedToolReply(enabled bool) Option {
	return func(m *ToolManager) { m.unsupportedReply = enabled }
}

// NewToolManager creates a new tool manager with the built-in tools registered
func NewToolManager(sink event.Sink, opts ...Option) *ToolManager {
	m := &ToolManager{
		sink:     sink,
		registry: make(map[string]*ToolDefinition),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registerBuiltInTools()
	return m
}

func (m *ToolManager) registerBuiltInTools() {
	m.RegisterTool(&ToolDefinition{
		Name:           ToolNameScheduleVaccination,
		Description:    "Books a vaccination appointment for the caller's pet.",
		Parameters:     ScheduleVaccinationSchema,
		FailureMessage: "There was an error booking the appointment. Please try again.",
		Executor:       m.ExecuteScheduleVaccination,
	})

	m.RegisterTool(&ToolDefinition{
		Name:        ToolNameGetInsuranceInfo,
		Description: "Returns the available pet insurance plans with price and coverage.",
		Parameters:  EmptySchema,
		Executor:    m.ExecuteGetInsuranceInfo,
	})

	m.RegisterTool(&ToolDefinition{
		Name:           ToolNameInsuranceQuote,
		Description:    "Starts a pet insurance quote for the selected plan.",
		Parameters:     InsuranceQuoteSchema,
		FailureMessage: "There was an error starting the insurance quote. Please try again.",
		Executor:       m.ExecuteInsuranceQuote,
	})
}

// RegisterTool registers a custom tool, replacing one with the same name
func (m *ToolManager) RegisterTool(tool *ToolDefinition) {
	m.mu.Lock()
	m.registry[tool.Name] = tool
	m.mu.Unlock()
	logger.Base().Info("Registered tool", zap.String("name", tool.Name))
}

// Definitions returns assistant function definitions for every registered tool, ordered by name.
// They are the tools list an assistant must be provisioned with for Dispatch to resolve its calls.
func (m *ToolManager) Definitions() []map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.registry))
	for name := range m.registry {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		t := m.registry[name]
		defs = append(defs, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return defs
}

// Dispatch runs the invocation and returns the JSON output to submit.
// ok is false when nothing should be submitted (unknown tool).
func (m *ToolManager) Dispatch(ctx context.Context, inv *domain.ToolInvocation) (output string, ok bool) {
	m.mu.RLock()
	def, exists := m.registry[inv.ToolName]
	m.mu.RUnlock()

	fields := []zap.Field{zap.String("tool", inv.ToolName), zap.String("tool_call_id", inv.CallID)}
	if !exists {
		logger.Warn(ctx, "No handler for requested tool", fields...)
		if m.unsupportedReply {
			return domain.MustJSON(Failure{Message: fmt.Sprintf("Unsupported tool: %s", inv.ToolName), Success: false}), true
		}
		return "", false
	}

	failure := def.FailureMessage
	if failure == "" {
		failure = defaultFailureMessage
	}

	if err := parseArguments(inv); err != nil {
		logger.Error(ctx, "Invalid tool arguments", append(fields, zap.Error(err))...)
		return domain.MustJSON(Failure{Message: failure, Success: false}), true
	}

	result, err := m.execute(ctx, def, inv)
	if err != nil {
		logger.Error(ctx, "Error handling tool call", append(fields, zap.Error(err))...)
		return domain.MustJSON(Failure{Message: failure, Success: false}), true
	}

	data, err := json.Marshal(result)
	if err != nil {
		logger.Error(ctx, "Tool result is not serializable", append(fields, zap.Error(err))...)
		return domain.MustJSON(Failure{Message: failure, Success: false}), true
	}
	logger.Info(ctx, "Tool executed", fields...)
	return string(data), true
}

func (m *ToolManager) execute(ctx context.Context, def *ToolDefinition, inv *domain.ToolInvocation) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("tool %s panicked: %v", def.Name, r)
		}
	}()
	if def.Executor == nil {
		return nil, fmt.Errorf("tool %s has no executor", def.Name)
	}
	return def.Executor(ctx, inv)
}

func parseArguments(inv *domain.ToolInvocation) error {
	if inv.Arguments != nil {
		return nil
	}
	inv.Arguments = domain.JSONB{}
	if inv.RawArgs == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(inv.RawArgs), &inv.Arguments); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	return nil
}
