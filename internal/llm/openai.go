package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/llm/prompts"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

// Client implements Service against any OpenAI-compatible API. Listening
// audio comes from the speech endpoint; speaking recordings are transcribed
// with the audio endpoint and graded from the transcript.
type Client struct {
	api             *openai.Client
	model           string
	speechModel     string
	speechVoice     string
	transcribeModel string
}

// NewClient creates an OpenAI-compatible provider.
func NewClient(cfg Config) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	speechModel := cfg.SpeechModel
	if speechModel == "" {
		speechModel = string(openai.TTSModel1)
	}
	speechVoice := cfg.SpeechVoice
	if speechVoice == "" {
		speechVoice = string(openai.VoiceAlloy)
	}
	transcribeModel := cfg.TranscribeModel
	if transcribeModel == "" {
		transcribeModel = openai.Whisper1
	}

	return &Client{
		api:             openai.NewClientWithConfig(config),
		model:           cfg.Model,
		speechModel:     speechModel,
		speechVoice:     speechVoice,
		transcribeModel: transcribeModel,
	}
}

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM API unreachable: %w", err)
	}
	return nil
}

func (c *Client) chatJSON(ctx context.Context, system, user string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

// GenerateContent produces module-appropriate test material.
func (c *Client) GenerateContent(ctx context.Context, module model.Module) (model.TestContent, error) {
	tc, err := c.generate(ctx, module)
	if err != nil {
		return model.TestContent{}, &GenerationError{Err: err}
	}
	if !tc.PopulatedFor(module) {
		return model.TestContent{}, &GenerationError{Err: fmt.Errorf("empty %s content", module)}
	}
	return tc, nil
}

func (c *Client) generate(ctx context.Context, module model.Module) (model.TestContent, error) {
	switch module {
	case model.ModuleReading:
		raw, err := c.chatJSON(ctx, prompts.WriterSystem, prompts.Reading(), 0.7)
		if err != nil {
			return model.TestContent{}, err
		}
		return decodeObjectiveContent(raw)

	case model.ModuleListening:
		raw, err := c.chatJSON(ctx, prompts.WriterSystem, prompts.Listening(), 0.7)
		if err != nil {
			return model.TestContent{}, err
		}
		tc, err := decodeObjectiveContent(raw)
		if err != nil {
			return model.TestContent{}, err
		}
		audio, err := c.Synthesize(ctx, tc.PassageText)
		if err != nil {
			return model.TestContent{}, err
		}
		tc.Audio = &audio
		return tc, nil

	case model.ModuleWriting:
		raw, err := c.chatJSON(ctx, prompts.WriterSystem, prompts.Writing(), 0.7)
		if err != nil {
			return model.TestContent{}, err
		}
		var wp model.WritingPrompt
		if err := unmarshalJSON(raw, &wp); err != nil {
			return model.TestContent{}, err
		}
		return model.TestContent{Writing: &wp}, nil

	case model.ModuleSpeaking:
		raw, err := c.chatJSON(ctx, prompts.WriterSystem, prompts.Speaking(), 0.7)
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

// Synthesize converts a listening transcript to speech.
func (c *Client) Synthesize(ctx context.Context, script string) (model.AudioPayload, error) {
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.speechModel),
		Input:          script,
		Voice:          openai.SpeechVoice(c.speechVoice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return model.AudioPayload{}, fmt.Errorf("speech synthesis: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return model.AudioPayload{}, fmt.Errorf("read speech response: %w", err)
	}
	return model.AudioPayload{MIMEType: "audio/mpeg", Data: data}, nil
}

// GradeObjective grades a finished Reading/Listening session.
func (c *Client) GradeObjective(ctx context.Context, module model.Module, questions []model.Question, answers map[int]string, rawScore int) (model.FeedbackRecord, error) {
	raw, err := c.chatJSON(ctx, prompts.ExaminerSystem, prompts.GradeObjective(module, questions, answers, rawScore), 0.1)
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
func (c *Client) GradeWriting(ctx context.Context, answers model.WritingAnswers, prompt model.WritingPrompt) (model.FeedbackRecord, error) {
	raw, err := c.chatJSON(ctx, prompts.ExaminerSystem, prompts.GradeWriting(answers, prompt), 0.1)
	if err != nil {
		return model.FeedbackRecord{}, &GradingError{Err: err}
	}
	fb, err := decodeFeedback(raw, model.ModuleWriting)
	if err != nil {
		return model.FeedbackRecord{}, &GradingError{Err: err}
	}
	return fb, nil
}

// GradeSpeaking transcribes the recording and grades the transcript.
func (c *Client) GradeSpeaking(ctx context.Context, audio model.AudioPayload, shown model.SpeakingPrompts) (model.FeedbackRecord, error) {
	tr, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcribeModel,
		FilePath: "speaking.webm",
		Reader:   bytes.NewReader(audio.Data),
	})
	if err != nil {
		return model.FeedbackRecord{}, &GradingError{Err: fmt.Errorf("transcription: %w", err)}
	}

	raw, err := c.chatJSON(ctx, prompts.ExaminerSystem, prompts.GradeSpeakingTranscript(shown, tr.Text), 0.1)
	if err != nil {
		return model.FeedbackRecord{}, &GradingError{Err: err}
	}
	fb, err := decodeFeedback(raw, model.ModuleSpeaking)
	if err != nil {
		return model.FeedbackRecord{}, &GradingError{Err: err}
	}
	return fb, nil
}
