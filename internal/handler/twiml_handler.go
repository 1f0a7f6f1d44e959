package handler

import (
	"net/http"

	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"
)

const (
	connectGreeting = "Please wait while we connect your call to the A. I. voice assistant, powered by Twilio and the Open-A.I. Realtime API"
	startTalking    = "O.K. you can start talking!"
)

// TwiMLHandler answers Twilio voice webhooks
type TwiMLHandler struct {
	studioFlowURL string
}

func NewTwiMLHandler(studioFlowURL string) *TwiMLHandler {
	return &TwiMLHandler{studioFlowURL: studioFlowURL}
}

// IncomingCall connects the call to the media stream endpoint on this host
func (h *TwiMLHandler) IncomingCall(w http.ResponseWriter, r *http.Request) {
	verbs := []twiml.Element{
		&twiml.VoiceSay{Message: connectGreeting},
		&twiml.VoicePause{Length: "1"},
		&twiml.VoiceSay{Message: startTalking},
		&twiml.VoiceConnect{
			InnerElements: []twiml.Element{
				&twiml.VoiceStream{Url: "wss://" + r.Host + "/media-stream"},
			},
		},
	}
	h.write(w, verbs)
}

// IncomingCallDirect hands the call to the configured Studio flow
func (h *TwiMLHandler) IncomingCallDirect(w http.ResponseWriter, r *http.Request) {
	if h.studioFlowURL == "" {
		logger.Base().Error("STUDIO_FLOW_URL is not configured")
		http.Error(w, "Studio flow not configured", http.StatusServiceUnavailable)
		return
	}
	h.write(w, []twiml.Element{&twiml.VoiceRedirect{Url: h.studioFlowURL}})
}

func (h *TwiMLHandler) write(w http.ResponseWriter, verbs []twiml.Element) {
	doc, err := twiml.Voice(verbs)
	if err != nil {
		logger.Base().Error("Failed to render TwiML", zap.Error(err))
		http.Error(w, "Failed to render TwiML", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(doc))
}
