package llm

import (
	"context"
	"fmt"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

// Service is the content & grading boundary the session controller talks
// to. All four calls are request/response, single-shot, no streaming.
// Generation failures are *GenerationError; grading failures are
// *GradingError.
type Service interface {
	GenerateContent(ctx context.Context, module model.Module) (model.TestContent, error)
	GradeObjective(ctx context.Context, module model.Module, questions []model.Question, answers map[int]string, rawScore int) (model.FeedbackRecord, error)
	GradeWriting(ctx context.Context, answers model.WritingAnswers, prompt model.WritingPrompt) (model.FeedbackRecord, error)
	GradeSpeaking(ctx context.Context, audio model.AudioPayload, prompts model.SpeakingPrompts) (model.FeedbackRecord, error)
}

// Synthesizer produces spoken audio for a listening transcript.
type Synthesizer interface {
	Synthesize(ctx context.Context, script string) (model.AudioPayload, error)
}

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds provider settings from CLI flags. The OpenAI-compatible
// endpoint is always configured: the Gemini provider borrows it for speech
// synthesis, which the Gemini SDK does not offer.
type Config struct {
	Provider        string
	BaseURL         string // OpenAI-compatible API base URL
	APIKey          string
	Model           string
	SpeechModel     string
	SpeechVoice     string
	TranscribeModel string
	GeminiKey       string
	GeminiModel     string
}

// New builds the configured provider.
func New(cfg Config) (Service, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewClient(cfg), nil
	case ProviderGemini:
		return NewGemini(cfg, NewClient(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
