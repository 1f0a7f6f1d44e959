package openai

import (
	"github.com/ClareAI/astra-call-relay/internal/config"
)

// Realtime session configuration sent once after the socket opens
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type TurnDetection struct {
	Type string `json:"type"`
}

type SessionConfig struct {
	TurnDetection     TurnDetection `json:"turn_detection"`
	InputAudioFormat  string        `json:"input_audio_format"`
	OutputAudioFormat string        `json:"output_audio_format"`
	Voice             string        `json:"voice"`
	Instructions      string        `json:"instructions,omitempty"`
	Modalities        []string      `json:"modalities"`
	Temperature       float64       `json:"temperature"`
}

// NewSessionUpdate builds the session.update message for a telephony media stream
func NewSessionUpdate(cfg *config.Config) SessionUpdate {
	return SessionUpdate{
		Type: "session.update",
		Session: SessionConfig{
			TurnDetection:     TurnDetection{Type: "server_vad"},
			InputAudioFormat:  config.DefaultAudioFormat,
			OutputAudioFormat: config.DefaultAudioFormat,
			Voice:             cfg.Voice,
			Instructions:      cfg.SystemMessage,
			Modalities:        []string{"text", "audio"},
			Temperature:       cfg.Temperature,
		},
	}
}

// InputAudioAppend forwards one caller audio chunk
type InputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func NewInputAudioAppend(payload string) InputAudioAppend {
	return InputAudioAppend{Type: "input_audio_buffer.append", Audio: payload}
}
