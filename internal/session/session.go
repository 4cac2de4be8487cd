// Package session implements the test-session controller: the state
// machine driving one test attempt from content load through answer
// collection, submission, and grading.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/llm"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/media"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

// State represents the controller's lifecycle phase.
type State string

const (
	StateLoading     State = "loading"
	StateInteracting State = "interacting"
	StateSubmitting  State = "submitting"
	StateComplete    State = "complete"
	StateCancelled   State = "cancelled"
)

// SpeakingStage is the Speaking sub-machine within Interacting. It advances
// only by explicit user action; recording spans Part1 through Finalize as
// one continuous capture.
type SpeakingStage int

const (
	StageIntro SpeakingStage = iota
	StagePart1
	StagePart2
	StagePart3
	StageFinalize
)

func (s SpeakingStage) String() string {
	switch s {
	case StageIntro:
		return "intro"
	case StagePart1:
		return "part1"
	case StagePart2:
		return "part2"
	case StagePart3:
		return "part3"
	case StageFinalize:
		return "finalize"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Controller owns all state of one test attempt: the generated content, the
// recorded answers, and the media handles. It is torn down on completion or
// cancellation; everything it owns is discarded with it.
//
// All methods are safe for concurrent use. At most one service call is ever
// in flight; re-entrant triggers while loading or submitting are rejected
// with ErrBusy. The epoch counter guards against a stale service response
// being applied after cancellation.
type Controller struct {
	mu       sync.Mutex
	module   model.Module
	svc      llm.Service
	state    State
	stage    SpeakingStage
	epoch    uint64
	inFlight bool

	content  model.TestContent
	answers  map[int]string
	writing  model.WritingAnswers
	recorder *media.Recorder
	speech   *model.AudioPayload
	player   *media.Player
	result   *model.SessionResult
}

// New creates a controller in the Loading state.
func New(module model.Module, svc llm.Service) (*Controller, error) {
	if !module.Valid() {
		return nil, fmt.Errorf("unknown module %q", module)
	}
	return &Controller{
		module:  module,
		svc:     svc,
		state:   StateLoading,
		answers: make(map[int]string),
	}, nil
}

// Module returns the immutable module selection.
func (c *Controller) Module() model.Module { return c.module }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stage returns the speaking sub-machine position.
func (c *Controller) Stage() SpeakingStage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Content returns the loaded test material (zero before Load succeeds).
func (c *Controller) Content() model.TestContent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

// Answers returns a copy of the recorded objective answers.
func (c *Controller) Answers() map[int]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]string, len(c.answers))
	for k, v := range c.answers {
		out[k] = v
	}
	return out
}

// WritingAnswers returns the recorded writing task responses.
func (c *Controller) WritingAnswers() model.WritingAnswers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writing
}

// Result returns the session result once the controller is Complete.
func (c *Controller) Result() (model.SessionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return model.SessionResult{}, false
	}
	return *c.result, true
}

// Player returns the playback adapter prepared for a Listening session, or
// nil.
func (c *Controller) Player() *media.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

// Recording reports whether a speaking capture is active.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recorder != nil && c.recorder.Recording()
}

// Load requests module-appropriate content from the grading service. On
// success the controller moves to Interacting; for Listening a playback
// adapter is prepared (not started) around the received audio. A load
// failure is fatal: the controller moves to Cancelled and does not retry.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateLoading {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrBusy
	}
	c.inFlight = true
	epoch := c.epoch
	c.mu.Unlock()

	content, err := c.svc.GenerateContent(ctx, c.module)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if c.state != StateLoading || c.epoch != epoch {
		// Torn down while the request was in flight; the late result is
		// discarded, not applied.
		return ErrCancelled
	}
	if err != nil {
		c.state = StateCancelled
		c.teardownLocked()
		return err
	}

	c.content = content
	if c.module == model.ModuleListening && content.Audio != nil {
		c.player = media.NewPlayer(*content.Audio)
	}
	c.state = StateInteracting
	return nil
}

// RecordAnswer upserts an objective answer. Repeated calls with the same id
// overwrite. The only validation is kind-matching: a tri-state question
// accepts one of the three allowed literals, a multiple-choice question one
// of its listed options.
func (c *Controller) RecordAnswer(questionID int, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInteracting || !c.module.Objective() {
		return ErrInvalidState
	}

	var question *model.Question
	for i := range c.content.Questions {
		if c.content.Questions[i].ID == questionID {
			question = &c.content.Questions[i]
			break
		}
	}
	if question == nil {
		return &ValidationError{QuestionID: questionID, Reason: "unknown question"}
	}

	switch question.Kind {
	case model.KindTrueFalseNotGiven:
		if !matchesAny(value, model.TrueFalseNotGivenValues) {
			return &ValidationError{QuestionID: questionID, Reason: "answer must be True, False or Not Given"}
		}
	case model.KindMultipleChoice:
		if !matchesAny(value, question.Options) {
			return &ValidationError{QuestionID: questionID, Reason: "answer must be one of the listed options"}
		}
	}

	c.answers[questionID] = value
	return nil
}

func matchesAny(value string, allowed []string) bool {
	for _, a := range allowed {
		if model.NormalizeAnswer(value) == model.NormalizeAnswer(a) {
			return true
		}
	}
	return false
}

// SetWritingAnswers upserts both writing task responses.
func (c *Controller) SetWritingAnswers(task1, task2 string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInteracting || c.module != model.ModuleWriting {
		return ErrInvalidState
	}
	c.writing = model.WritingAnswers{Task1: task1, Task2: task2}
	return nil
}

// SubmitObjective computes the raw score and sends the full answer and
// question set to the grading service. Unanswered questions count as
// incorrect. A grading failure keeps the controller in Submitting with all
// answers intact; the retry sends an identical payload.
func (c *Controller) SubmitObjective(ctx context.Context) (model.SessionResult, error) {
	c.mu.Lock()
	if !c.module.Objective() {
		c.mu.Unlock()
		return model.SessionResult{}, ErrInvalidState
	}
	if err := c.beginSubmitLocked(); err != nil {
		c.mu.Unlock()
		return model.SessionResult{}, err
	}
	questions := c.content.Questions
	answers := make(map[int]string, len(c.answers))
	for k, v := range c.answers {
		answers[k] = v
	}
	raw := rawScore(questions, answers)
	epoch := c.epoch
	c.mu.Unlock()

	fb, err := c.svc.GradeObjective(ctx, c.module, questions, answers, raw)

	return c.finishSubmit(epoch, err, model.SessionResult{
		Module:    c.module,
		Objective: &model.ObjectiveScore{Correct: raw, Total: len(questions)},
		Feedback:  fb,
	})
}

// SubmitWriting sends both task responses and their prompts to the grading
// service. Empty responses are allowed through: the examiner can still
// grade them, so emptiness is a UI warning, never a block.
func (c *Controller) SubmitWriting(ctx context.Context) (model.SessionResult, error) {
	c.mu.Lock()
	if c.module != model.ModuleWriting {
		c.mu.Unlock()
		return model.SessionResult{}, ErrInvalidState
	}
	if err := c.beginSubmitLocked(); err != nil {
		c.mu.Unlock()
		return model.SessionResult{}, err
	}
	answers := c.writing
	prompt := *c.content.Writing
	epoch := c.epoch
	c.mu.Unlock()

	fb, err := c.svc.GradeWriting(ctx, answers, prompt)

	return c.finishSubmit(epoch, err, model.SessionResult{
		Module:   c.module,
		Feedback: fb,
	})
}

// StartSpeakingCapture acquires the microphone and begins the one
// continuous recording. Denied access is fatal for the session: the
// controller moves to Cancelled and no recording buffer is created.
func (c *Controller) StartSpeakingCapture(ctx context.Context, mic media.Microphone) error {
	c.mu.Lock()
	if c.module != model.ModuleSpeaking || c.state != StateInteracting || c.stage != StageIntro {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if c.recorder != nil {
		c.mu.Unlock()
		return media.ErrAlreadyRecording
	}
	rec := media.NewRecorder(mic)
	c.mu.Unlock()

	// The microphone handshake may block on the browser; run it unlocked.
	err := rec.Start(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateCancelled
		c.teardownLocked()
		return err
	}
	if c.state != StateInteracting {
		rec.Stop()
		return ErrCancelled
	}
	c.recorder = rec
	c.stage = StagePart1
	return nil
}

// AdvanceSpeakingPart moves the sub-machine one stage forward. A pure state
// transition: the recording stream is untouched.
func (c *Controller) AdvanceSpeakingPart() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.module != model.ModuleSpeaking || c.state != StateInteracting {
		return ErrInvalidState
	}
	switch c.stage {
	case StagePart1, StagePart2, StagePart3:
		c.stage++
		return nil
	}
	return ErrInvalidState
}

// AppendSpeakingChunk buffers one captured audio chunk.
func (c *Controller) AppendSpeakingChunk(chunk []byte) error {
	c.mu.Lock()
	rec := c.recorder
	c.mu.Unlock()

	if rec == nil {
		return ErrInvalidState
	}
	rec.Append(chunk)
	return nil
}

// FinishSpeakingCapture stops the recorder, packages the finished payload,
// and submits it together with every prompt shown during the session. Only
// reachable once the sub-machine has passed Part3. The finalized payload is
// retained so a grading failure can be retried without re-recording.
func (c *Controller) FinishSpeakingCapture(ctx context.Context) (model.SessionResult, error) {
	c.mu.Lock()
	if c.module != model.ModuleSpeaking {
		c.mu.Unlock()
		return model.SessionResult{}, ErrInvalidState
	}
	if c.state == StateInteracting && c.stage != StageFinalize {
		c.mu.Unlock()
		return model.SessionResult{}, ErrInvalidState
	}
	if err := c.beginSubmitLocked(); err != nil {
		c.mu.Unlock()
		return model.SessionResult{}, err
	}
	if c.speech == nil {
		if c.recorder == nil {
			c.state = StateInteracting
			c.inFlight = false
			c.mu.Unlock()
			return model.SessionResult{}, ErrInvalidState
		}
		payload, ok := c.recorder.Stop()
		if !ok {
			c.state = StateInteracting
			c.inFlight = false
			c.mu.Unlock()
			return model.SessionResult{}, ErrInvalidState
		}
		c.speech = &payload
	}
	audio := *c.speech
	shown := *c.content.Speaking
	epoch := c.epoch
	c.mu.Unlock()

	fb, err := c.svc.GradeSpeaking(ctx, audio, shown)

	return c.finishSubmit(epoch, err, model.SessionResult{
		Module:   c.module,
		Feedback: fb,
	})
}

// Cancel tears the session down. Idempotent; a service response that
// resolves afterwards is discarded.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateComplete || c.state == StateCancelled {
		return
	}
	c.state = StateCancelled
	c.epoch++
	c.teardownLocked()
}

// beginSubmitLocked gates submission to Interacting (first attempt) or
// Submitting after a recoverable grading failure (manual retry).
func (c *Controller) beginSubmitLocked() error {
	switch c.state {
	case StateInteracting:
	case StateSubmitting:
		if c.inFlight {
			return ErrBusy
		}
	default:
		return ErrInvalidState
	}
	c.state = StateSubmitting
	c.inFlight = true
	return nil
}

func (c *Controller) finishSubmit(epoch uint64, err error, res model.SessionResult) (model.SessionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight = false
	if c.state != StateSubmitting || c.epoch != epoch {
		return model.SessionResult{}, ErrCancelled
	}
	if err != nil {
		// Recoverable: stay in Submitting with answers and audio intact.
		return model.SessionResult{}, err
	}
	c.result = &res
	c.state = StateComplete
	c.teardownLocked()
	return res, nil
}

// teardownLocked releases media handles on every terminal transition so no
// capture or playback outlives the session.
func (c *Controller) teardownLocked() {
	if c.recorder != nil {
		c.recorder.Stop()
		c.recorder = nil
	}
	if c.player != nil {
		c.player.Pause()
		c.player = nil
	}
}

func rawScore(questions []model.Question, answers map[int]string) int {
	score := 0
	for _, q := range questions {
		a, ok := answers[q.ID]
		if !ok {
			continue
		}
		if model.NormalizeAnswer(a) == model.NormalizeAnswer(q.CorrectAnswer) {
			score++
		}
	}
	return score
}
