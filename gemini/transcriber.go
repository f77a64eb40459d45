package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

const (
	defaultModel = "gemini-2.5-flash"

	transcribePrompt = "Transcribe this push-to-talk voice message verbatim. " +
		"Reply with the transcript only. If there is no speech, reply with an empty message."
)

// ErrClosed is returned by Transcribe after Close
var ErrClosed = errors.New("transcriber is closed")

// Transcriber sends recorded WAV audio to Gemini and returns the transcript
type Transcriber struct {
	client *genai.Client
	model  string
	logger logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
}

// Option configures a Transcriber
type Option func(*config)

type config struct {
	model   string
	baseURL string
	logger  logrus.FieldLogger
}

// WithModel overrides the model name
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL points the client at another endpoint
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// NewTranscriber creates a Gemini API client
func NewTranscriber(ctx context.Context, apiKey string, opts ...Option) (*Transcriber, error) {
	cfg := config{model: defaultModel, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Transcriber{
		client: client,
		model:  cfg.model,
		logger: cfg.logger,
	}, nil
}

// Transcribe returns the text spoken in wav
func (t *Transcriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(wav, "audio/wav"),
			genai.NewPartFromText(transcribePrompt),
		}, genai.RoleUser),
	}

	t.logger.WithField("bytes", len(wav)).Debug("📤 Sending audio to Gemini")
	resp, err := t.client.Models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe with %s: %w", t.model, err)
	}

	text := strings.TrimSpace(resp.Text())
	t.logger.WithField("chars", len(text)).Debug("📥 Received transcript from Gemini")
	return text, nil
}

// Close stops further requests
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
