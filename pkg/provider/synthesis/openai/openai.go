// Package openai provides a synthesis provider backed by the OpenAI
// audio/speech API. It synthesises the full utterance server-side and hands
// the encoded audio to a caller-supplied sink (in the reference deployment,
// the WebSocket bridge ships it to the client for playback).
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mzajc/lektor/pkg/provider/synthesis"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelGPT4oMiniTTS

// DefaultVoice is the voice used when none is configured.
const DefaultVoice = oai.AudioSpeechNewParamsVoiceAlloy

// Ensure Provider implements the synthesis.Provider interface.
var _ synthesis.Provider = (*Provider)(nil)

// Sink receives the encoded audio of a completed utterance. Speak does not
// return until the sink has accepted the bytes, so a sink that forwards to
// a client connection gives Speak end-to-end completion semantics.
type Sink func(ctx context.Context, audio []byte) error

// Provider implements synthesis.Provider using the OpenAI audio/speech API.
type Provider struct {
	client oai.Client
	sink   Sink
	model  oai.SpeechModel
	voice  oai.AudioSpeechNewParamsVoice
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	model   string
	voice   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel selects the speech model (e.g., "tts-1", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithVoice selects the voice (e.g., "alloy", "nova").
func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI synthesis Provider. apiKey must be non-empty
// and sink must not be nil.
func New(apiKey string, sink Sink, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai synthesis: apiKey must not be empty")
	}
	if sink == nil {
		return nil, fmt.Errorf("openai synthesis: sink must not be nil")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	p := &Provider{
		client: oai.NewClient(reqOpts...),
		sink:   sink,
		model:  DefaultModel,
		voice:  DefaultVoice,
	}
	if cfg.model != "" {
		p.model = oai.SpeechModel(cfg.model)
	}
	if cfg.voice != "" {
		p.voice = oai.AudioSpeechNewParamsVoice(cfg.voice)
	}
	return p, nil
}

// Speak implements synthesis.Provider. It synthesises text as MP3 and
// forwards the audio to the sink, returning once the sink accepts it.
func (p *Provider) Speak(ctx context.Context, text string) error {
	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          p.model,
		Voice:          p.voice,
		Input:          text,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return fmt.Errorf("openai synthesis: speak: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai synthesis: read audio: %w", err)
	}

	if err := p.sink(ctx, audio); err != nil {
		return fmt.Errorf("openai synthesis: deliver audio: %w", err)
	}
	return nil
}
