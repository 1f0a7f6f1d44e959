package postcall

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ClareAI/astra-call-relay/internal/core/event"
	"github.com/ClareAI/astra-call-relay/internal/core/model/openai"
	"github.com/ClareAI/astra-call-relay/internal/core/session"
	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"go.uber.org/zap"
)

const (
	transcriptLimit = 100
	maxTokens       = 10000
	jobTimeout      = 5 * time.Minute

	hallucinationPrompt = "hallucination-check.txt"
	qualityPrompt       = "conversation-quality.txt"
	qualitySchema       = "conversation_metrics.json"
)

// Provider is the slice of the OpenAI client the job needs
type Provider interface {
	RetrieveThread(ctx context.Context, threadID string) (*openai.Thread, error)
	ListMessages(ctx context.Context, threadID string, limit int) (*openai.MessageList, error)
	RetrieveAssistant(ctx context.Context, assistantID string) (*openai.Assistant, error)
	CreateChatCompletion(ctx context.Context, req *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)
}

// Request is one finished conversation relay session
type Request struct {
	SessionID string
	Duration  string
}

// TranscriptMessage is a thread message stripped to what the graders read
type TranscriptMessage struct {
	Role    string                  `json:"role"`
	Content []openai.MessageContent `json:"content"`
}

// Processor grades finished calls and reports the result to the event sink
type Processor struct {
	provider    Provider
	store       session.Store
	sink        event.Sink
	assistantID string
	model       string
	promptsDir  string

	wg sync.WaitGroup
}

func NewProcessor(provider Provider, store session.Store, sink event.Sink, assistantID, model, promptsDir string) *Processor {
	return &Processor{
		provider:    provider,
		store:       store,
		sink:        sink,
		assistantID: assistantID,
		model:       model,
		promptsDir:  promptsDir,
	}
}

// Submit runs the job in the background, detached from the request context
func (p *Processor) Submit(ctx context.Context, req Request) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
		defer cancel()
		if err := p.Process(jobCtx, req); err != nil {
			logger.Error(jobCtx, "Post-call processing failed", zap.String("session_id", req.SessionID), zap.Error(err))
		}
	}()
}

// Wait blocks until submitted jobs finish
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Process replays the transcript of a session through the graders and tracks the outcome
func (p *Processor) Process(ctx context.Context, req Request) error {
	ctx = logger.WithFields(ctx, zap.String("session_id", req.SessionID))

	rec, err := p.store.Get(ctx, session.Key(req.SessionID))
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	ctx = logger.WithFields(ctx, zap.String("thread_id", rec.Thread))

	thread, err := p.provider.RetrieveThread(ctx, rec.Thread)
	if err != nil {
		return err
	}
	list, err := p.provider.ListMessages(ctx, rec.Thread, transcriptLimit)
	if err != nil {
		return err
	}

	transcript := make([]TranscriptMessage, 0, len(list.Data))
	for _, m := range list.Data {
		transcript = append(transcript, TranscriptMessage{Role: m.Role, Content: m.Content})
	}
	transcriptJSON := domain.MustJSON(transcript)

	hallucination, err := p.hallucinationCheck(ctx, transcriptJSON)
	if err != nil {
		logger.Error(ctx, "Hallucination check failed", zap.Error(err))
	}
	quality, err := p.conversationQuality(ctx, transcriptJSON)
	if err != nil {
		logger.Error(ctx, "Conversation quality check failed", zap.Error(err))
	}

	props := domain.Merge(domain.JSONB{"conversation_duration": parseDuration(req.Duration)}, hallucination, quality)
	if _, err := p.sink.Track(ctx, thread.Metadata["userId"], event.OutboundCallCompleted, props); err != nil {
		return fmt.Errorf("track completion: %w", err)
	}
	logger.Info(ctx, "Post-call processing completed", zap.Int("messages", len(transcript)))
	return nil
}

func (p *Processor) hallucinationCheck(ctx context.Context, transcript string) (domain.JSONB, error) {
	prompt, err := p.readAsset("prompts", hallucinationPrompt)
	if err != nil {
		return nil, err
	}
	return p.complete(ctx, &openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: transcript},
		},
		MaxTokens:      maxTokens,
		Temperature:    0.7,
		ResponseFormat: &openai.ResponseFormat{Type: "json_object"},
	})
}

func (p *Processor) conversationQuality(ctx context.Context, transcript string) (domain.JSONB, error) {
	prompt, err := p.readAsset("prompts", qualityPrompt)
	if err != nil {
		return nil, err
	}
	schema, err := p.readAsset("schemas", qualitySchema)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(schema)) {
		return nil, fmt.Errorf("schema %s is not valid JSON", qualitySchema)
	}

	assistant, err := p.provider.RetrieveAssistant(ctx, p.assistantID)
	if err != nil {
		return nil, err
	}

	return p.complete(ctx, &openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: assistant.Instructions},
			{Role: "user", Content: transcript},
		},
		MaxTokens:      maxTokens,
		Temperature:    0.1,
		ResponseFormat: &openai.ResponseFormat{Type: "json_schema", JSONSchema: json.RawMessage(schema)},
	})
}

func (p *Processor) complete(ctx context.Context, req *openai.ChatCompletionRequest) (domain.JSONB, error) {
	resp, err := p.provider.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	content, err := resp.FirstContent()
	if err != nil {
		return nil, err
	}
	var out domain.JSONB
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode grader response: %w", err)
	}
	return out, nil
}

func (p *Processor) readAsset(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(p.promptsDir, dir, name))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

// parseDuration keeps the telephony provided duration numeric when it is
func parseDuration(raw string) interface{} {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}
