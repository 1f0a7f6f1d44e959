package handler

import (
	"encoding/json"
	"net/http"
)

// ToolCatalog lists the function definitions the dispatcher can resolve
type ToolCatalog interface {
	Definitions() []map[string]interface{}
}

// ToolHandler serves the tool catalog used to provision the assistant
type ToolHandler struct {
	tools ToolCatalog
}

func NewToolHandler(tools ToolCatalog) *ToolHandler {
	return &ToolHandler{tools: tools}
}

// List returns the definitions in the shape the assistant's tools field expects
func (h *ToolHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"tools": h.tools.Definitions()})
}
