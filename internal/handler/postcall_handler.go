package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ClareAI/astra-call-relay/internal/core/postcall"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"go.uber.org/zap"
)

// PostCallSubmitter queues a finished session for grading
type PostCallSubmitter interface {
	Submit(ctx context.Context, req postcall.Request)
}

// PostCallHandler receives the conversation relay session-ended callback
type PostCallHandler struct {
	jobs PostCallSubmitter
}

func NewPostCallHandler(jobs PostCallSubmitter) *PostCallHandler {
	return &PostCallHandler{jobs: jobs}
}

func (h *PostCallHandler) CallPostProcessing(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	req := postcall.Request{
		SessionID: r.PostForm.Get("SessionId"),
		Duration:  r.PostForm.Get("SessionDuration"),
	}
	if req.SessionID == "" {
		http.Error(w, "SessionId is required", http.StatusBadRequest)
		return
	}

	logger.Base().Info("Post-call processing requested",
		zap.String("session_id", req.SessionID),
		zap.String("duration", req.Duration))
	h.jobs.Submit(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "session_id": req.SessionID})
}
