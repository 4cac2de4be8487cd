package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/llm/prompts"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

// Gemini implements Service on Google's generative API. Speaking recordings
// are graded natively from the audio blob; listening audio synthesis is
// delegated to the injected Synthesizer since the SDK carries no speech
// endpoint.
type Gemini struct {
	apiKey string
	model  string
	speech Synthesizer
}

// NewGemini creates a Gemini provider.
func NewGemini(cfg Config, speech Synthesizer) *Gemini {
	return &Gemini{
		apiKey: strings.TrimSpace(cfg.GeminiKey),
		model:  strings.TrimSpace(cfg.GeminiModel),
		speech: speech,
	}
}

const geminiAttempts = 3

func (g *Gemini) generateJSON(ctx context.Context, system string, parts ...genai.Part) (string, error) {
	if g.apiKey == "" {
		return "", errors.New("gemini API key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.model)
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}

	// Retries cover transient 5xx failures only.
	var lastErr error
	for attempt := 1; attempt <= geminiAttempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := firstText(resp)
		if txt == "" {
			return "", errors.New("gemini: empty response")
		}
		return stripCodeFences(strings.TrimSpace(txt)), nil
	}
	return "", lastErr
}

// GenerateContent produces module-appropriate test material.
func (g *Gemini) GenerateContent(ctx context.Context, module model.Module) (model.TestContent, error) {
	tc, err := g.generate(ctx, module)
	if err != nil {
		return model.TestContent{}, &GenerationError{Err: err}
	}
	if !tc.PopulatedFor(module) {
		return model.TestContent{}, &GenerationError{Err: fmt.Errorf("empty %s content", module)}
	}
	return tc, nil
}

func (g *Gemini) generate(ctx context.Context, module model.Module) (model.TestContent, error) {
	switch module {
	case model.ModuleReading:
		raw, err := g.generateJSON(ctx, prompts.WriterSystem, genai.Text(prompts.Reading()))
		if err != nil {
			return model.TestContent{}, err
		}
		return decodeObjectiveContent(raw)

	case model.ModuleListening:
		raw, err := g.generateJSON(ctx, prompts.WriterSystem, genai.Text(prompts.Listening()))
		if err != nil {
			return model.TestContent{}, err
		}
		tc, err := decodeObjectiveContent(raw)
		if err != nil {
			return model.TestContent{}, err
		}
		audio, err := g.speech.Synthesize(ctx, tc.PassageText)
		if err != nil {
			return model.TestContent{}, err
		}
		tc.Audio = &audio
		return tc, nil

	case model.ModuleWriting:
		raw, err := g.generateJSON(ctx, prompts.WriterSystem, genai.Text(prompts.Writing()))
		if err != nil {
			return model.TestContent{}, err
		}
		var wp model.WritingPrompt
		if err := unmarshalJSON(raw, &wp); err != nil {
			return model.TestContent{}, err
		}
		return model.TestContent{Writing: &wp}, nil

	case model.ModuleSpeaking:
		raw, err := g.generateJSON(ctx, prompts.WriterSystem, genai.Text(prompts.Speaking()))
		if err != nil {
			return model.TestContent{}, err
		}
		var sp model.SpeakingPrompts
		if err := unmarshalJSON(raw, &sp); err != nil {
			return model.TestContent{}, err
		}
		return model.TestContent{Speaking: &sp}, nil
	}
	return model.TestContent{}, fmt.Errorf("unknown module %q", module)
}

// GradeObjective grades a finished Reading/Listening session.
func (g *Gemini) GradeObjective(ctx context.Context, module model.Module, questions []model.Question, answers map[int]string, rawScore int) (model.FeedbackRecord, error) {
	raw, err := g.generateJSON(ctx, prompts.ExaminerSystem, genai.Text(prompts.GradeObjective(module, questions, answers, rawScore)))
	if err != nil {
		return model.FeedbackRecord{}, &GradingError{Err: err}
	}
	fb, err := decodeFeedback(raw, module)
	if err != nil {
		return model.FeedbackRecord{}, &GradingError{Err: err}
	}
	return fb, nil
}

// GradeWriting grades both writing tasks.
func (g *Gemini) GradeWriting(ctx context.Context, answers model.WritingAnswers, prompt model.WritingPrompt) (model.FeedbackRecord, error) {
	raw, err := g.generateJSON(ctx, prompts.ExaminerSystem, genai.Text(prompts.GradeWriting(answers, prompt)))
	if err != nil {
		return model.FeedbackRecord{}, &GradingError{Err: err}
	}
	fb, err := decodeFeedback(raw, model.ModuleWriting)
	if err != nil {
		return model.FeedbackRecord{}, &GradingError{Err: err}
	}
	return fb, nil
}

// GradeSpeaking grades the raw recording multimodally.
func (g *Gemini) GradeSpeaking(ctx context.Context, audio model.AudioPayload, shown model.SpeakingPrompts) (model.FeedbackRecord, error) {
	raw, err := g.generateJSON(ctx, prompts.ExaminerSystem,
		&genai.Blob{MIMEType: audio.MIMEType, Data: audio.Data},
		genai.Text(prompts.GradeSpeaking(shown)),
	)
	if err != nil {
		return model.FeedbackRecord{}, &GradingError{Err: err}
	}
	fb, err := decodeFeedback(raw, model.ModuleSpeaking)
	if err != nil {
		return model.FeedbackRecord{}, &GradingError{Err: err}
	}
	return fb, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

// stripCodeFences removes a ```json ... ``` wrapper some models emit even
// in JSON mode.
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
