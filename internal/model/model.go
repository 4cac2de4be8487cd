package model

import "strings"

// Module represents one of the four exam skills. A module is selected once
// per session and is immutable for that session's lifetime.
type Module string

const (
	ModuleListening Module = "Listening"
	ModuleReading   Module = "Reading"
	ModuleWriting   Module = "Writing"
	ModuleSpeaking  Module = "Speaking"
)

// Modules lists all modules in dashboard order.
var Modules = []Module{ModuleListening, ModuleReading, ModuleWriting, ModuleSpeaking}

// Valid reports whether m names a known module.
func (m Module) Valid() bool {
	switch m {
	case ModuleListening, ModuleReading, ModuleWriting, ModuleSpeaking:
		return true
	}
	return false
}

// Objective reports whether the module is scored by exact-match correctness.
func (m Module) Objective() bool {
	return m == ModuleListening || m == ModuleReading
}

// AnswerKind represents how a question is answered.
type AnswerKind string

const (
	KindMultipleChoice    AnswerKind = "multiple-choice"
	KindTrueFalseNotGiven AnswerKind = "true-false-not-given"
	KindFillGap           AnswerKind = "fill-gap"
)

// TrueFalseNotGivenValues are the only literals a tri-state question accepts.
var TrueFalseNotGivenValues = []string{"True", "False", "Not Given"}

// Question is one generated objective question. JSON tags match the wire
// schema the content service produces.
type Question struct {
	ID            int        `json:"id"`
	Text          string     `json:"text"`
	Kind          AnswerKind `json:"type"`
	Options       []string   `json:"options,omitempty"`
	CorrectAnswer string     `json:"correctAnswer"`
	Tag           string     `json:"questionTag"`
}

// NormalizeAnswer lower-cases and trims an answer for comparison. Raw-score
// correctness is defined entirely by equality of normalized strings.
func NormalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AudioPayload is a finished, decodable audio blob plus its container type.
type AudioPayload struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// WritingPrompt is the pair of writing task descriptions.
type WritingPrompt struct {
	Task1 string `json:"task1"`
	Task2 string `json:"task2"`
}

// WritingAnswers holds the user's free-text response to each writing task.
type WritingAnswers struct {
	Task1 string `json:"task1"`
	Task2 string `json:"task2"`
}

// SpeakingPrompts is the three-part speaking material: introductory
// questions, one cue-card topic, and follow-up discussion questions.
type SpeakingPrompts struct {
	Part1 []string `json:"part1"`
	Part2 string   `json:"part2"`
	Part3 []string `json:"part3"`
}

// TestContent is the generated material for one session. Exactly one of the
// question set, writing prompt, or speaking prompts is populated, depending
// on the module. For Listening the passage text is the transcript and stays
// hidden from the user; Audio is what they get instead.
type TestContent struct {
	PassageText string           `json:"passageText,omitempty"`
	Audio       *AudioPayload    `json:"-"`
	Questions   []Question       `json:"questions,omitempty"`
	Writing     *WritingPrompt   `json:"writingPrompt,omitempty"`
	Speaking    *SpeakingPrompts `json:"speakingPrompts,omitempty"`
}

// PopulatedFor reports whether the content carries the material the given
// module requires. An empty result from the generation call is a load
// failure, not a playable session.
func (tc TestContent) PopulatedFor(m Module) bool {
	switch m {
	case ModuleReading:
		return tc.PassageText != "" && len(tc.Questions) > 0
	case ModuleListening:
		return tc.PassageText != "" && len(tc.Questions) > 0 && tc.Audio != nil && len(tc.Audio.Data) > 0
	case ModuleWriting:
		return tc.Writing != nil && tc.Writing.Task1 != "" && tc.Writing.Task2 != ""
	case ModuleSpeaking:
		return tc.Speaking != nil && len(tc.Speaking.Part1) > 0 && tc.Speaking.Part2 != "" && len(tc.Speaking.Part3) > 0
	}
	return false
}

// CriterionScore is one scored grading dimension. Scores are 0-9 band
// points, fractional increments allowed, always produced by the external
// grading service.
type CriterionScore struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// FeedbackRecord is the graded outcome of one session. Criteria keep the
// order they were supplied in; the record is immutable once received.
type FeedbackRecord struct {
	Module          Module           `json:"module"`
	BandScore       float64          `json:"bandScore"`
	Criteria        []CriterionScore `json:"criteria"`
	GeneralFeedback string           `json:"generalFeedback"`
	ImprovementPlan []string         `json:"improvementPlan"`
}

// ObjectiveScore is the raw correctness count for Reading/Listening.
type ObjectiveScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// SessionResult is created exactly once per completed session and discarded
// when the user returns to the dashboard.
type SessionResult struct {
	Module    Module          `json:"module"`
	Objective *ObjectiveScore `json:"objective,omitempty"`
	Feedback  FeedbackRecord  `json:"feedback"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	Lang           string   // UI language for notices (en, ru)
	AllowedOrigins []string // WebSocket origins; empty permits all (dev mode)
}
