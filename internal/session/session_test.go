package session

import (
	"context"
	"errors"
	"testing"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/llm"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/media"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

// fakeService scripts the content & grading boundary. Each call records its
// arguments so tests can assert on the exact payloads the controller sends.
type fakeService struct {
	content     model.TestContent
	generateErr error
	gradeErr    error

	generateCalls int
	gradeCalls    int

	gotQuestions []model.Question
	gotAnswers   map[int]string
	gotRawScore  int
	gotWriting   model.WritingAnswers
	gotPrompt    model.WritingPrompt
	gotAudio     model.AudioPayload
	gotSpeaking  model.SpeakingPrompts
}

func (f *fakeService) GenerateContent(ctx context.Context, module model.Module) (model.TestContent, error) {
	f.generateCalls++
	if f.generateErr != nil {
		return model.TestContent{}, f.generateErr
	}
	return f.content, nil
}

func (f *fakeService) GradeObjective(ctx context.Context, module model.Module, questions []model.Question, answers map[int]string, rawScore int) (model.FeedbackRecord, error) {
	f.gradeCalls++
	f.gotQuestions = questions
	f.gotAnswers = answers
	f.gotRawScore = rawScore
	if f.gradeErr != nil {
		return model.FeedbackRecord{}, f.gradeErr
	}
	return model.FeedbackRecord{Module: module, BandScore: 7}, nil
}

func (f *fakeService) GradeWriting(ctx context.Context, answers model.WritingAnswers, prompt model.WritingPrompt) (model.FeedbackRecord, error) {
	f.gradeCalls++
	f.gotWriting = answers
	f.gotPrompt = prompt
	if f.gradeErr != nil {
		return model.FeedbackRecord{}, f.gradeErr
	}
	return model.FeedbackRecord{Module: model.ModuleWriting, BandScore: 6.5}, nil
}

func (f *fakeService) GradeSpeaking(ctx context.Context, audio model.AudioPayload, prompts model.SpeakingPrompts) (model.FeedbackRecord, error) {
	f.gradeCalls++
	f.gotAudio = audio
	f.gotSpeaking = prompts
	if f.gradeErr != nil {
		return model.FeedbackRecord{}, f.gradeErr
	}
	return model.FeedbackRecord{Module: model.ModuleSpeaking, BandScore: 7.5}, nil
}

var _ llm.Service = (*fakeService)(nil)

func readingContent() model.TestContent {
	return model.TestContent{
		PassageText: "A passage about glaciers.",
		Questions: []model.Question{
			{ID: 1, Text: "q1", Kind: model.KindFillGap, CorrectAnswer: "moraine"},
			{ID: 2, Text: "q2", Kind: model.KindTrueFalseNotGiven, CorrectAnswer: "True"},
			{ID: 3, Text: "q3", Kind: model.KindMultipleChoice, Options: []string{"A", "B", "C"}, CorrectAnswer: "B"},
			{ID: 4, Text: "q4", Kind: model.KindTrueFalseNotGiven, CorrectAnswer: "Not Given"},
			{ID: 5, Text: "q5", Kind: model.KindFillGap, CorrectAnswer: "ablation"},
		},
	}
}

func speakingContent() model.TestContent {
	return model.TestContent{
		Speaking: &model.SpeakingPrompts{
			Part1: []string{"Where do you live?"},
			Part2: "Describe a skill you learned recently.",
			Part3: []string{"Why do adults struggle to learn new skills?"},
		},
	}
}

func startReading(t *testing.T, svc *fakeService) *Controller {
	t.Helper()
	if svc.content.PassageText == "" {
		svc.content = readingContent()
	}
	c, err := New(model.ModuleReading, svc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func startSpeaking(t *testing.T, svc *fakeService) *Controller {
	t.Helper()
	svc.content = speakingContent()
	c, err := New(model.ModuleSpeaking, svc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

type grantedMic struct{}

func (grantedMic) Open(ctx context.Context) error { return nil }

type deniedMic struct{}

func (deniedMic) Open(ctx context.Context) error { return errors.New("denied by user") }

func TestNewRejectsUnknownModule(t *testing.T) {
	if _, err := New(model.Module("Grammar"), &fakeService{}); err == nil {
		t.Error("unknown module should be rejected")
	}
}

func TestReadingFullRun(t *testing.T) {
	svc := &fakeService{}
	c := startReading(t, svc)

	if c.State() != StateInteracting {
		t.Fatalf("state after load = %s, want interacting", c.State())
	}

	// Three correct (one via normalization), one wrong, one unanswered.
	answers := map[int]string{
		1: " MORAINE ",
		2: "False",
		3: "B",
		4: "Not Given",
	}
	for id, a := range answers {
		if err := c.RecordAnswer(id, a); err != nil {
			t.Fatalf("RecordAnswer(%d, %q): %v", id, a, err)
		}
	}

	res, err := c.SubmitObjective(context.Background())
	if err != nil {
		t.Fatalf("SubmitObjective: %v", err)
	}

	if svc.gotRawScore != 3 {
		t.Errorf("raw score sent to grader = %d, want 3", svc.gotRawScore)
	}
	if len(svc.gotQuestions) != 5 {
		t.Errorf("grader received %d questions, want all 5", len(svc.gotQuestions))
	}
	if res.Objective == nil || res.Objective.Correct != 3 || res.Objective.Total != 5 {
		t.Errorf("Objective = %+v, want 3/5", res.Objective)
	}
	if c.State() != StateComplete {
		t.Errorf("state = %s, want complete", c.State())
	}
	if got, ok := c.Result(); !ok || got.Feedback.BandScore != 7 {
		t.Errorf("Result() = %+v, %v; want stored band 7", got, ok)
	}
}

func TestRecordAnswerValidation(t *testing.T) {
	c := startReading(t, &fakeService{})

	tests := []struct {
		name   string
		id     int
		answer string
		ok     bool
	}{
		{"unknown question", 99, "x", false},
		{"tri-state accepts case variants", 2, "not given", true},
		{"tri-state rejects free text", 2, "maybe", false},
		{"choice must match an option", 3, "D", false},
		{"choice accepts listed option", 3, "c", true},
		{"gap fill accepts anything", 1, "whatever", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.RecordAnswer(tt.id, tt.answer)
			if tt.ok && err != nil {
				t.Errorf("RecordAnswer = %v, want nil", err)
			}
			if !tt.ok {
				var valErr *ValidationError
				if !errors.As(err, &valErr) {
					t.Errorf("RecordAnswer = %v, want *ValidationError", err)
				}
			}
		})
	}

	// Overwrite is an upsert, not an error.
	if err := c.RecordAnswer(1, "first"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if err := c.RecordAnswer(1, "second"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got := c.Answers()[1]; got != "second" {
		t.Errorf("answer 1 = %q, want the overwritten value", got)
	}
}

func TestLoadFailureIsFatal(t *testing.T) {
	svc := &fakeService{generateErr: &llm.GenerationError{Err: errors.New("upstream 500")}}
	c, err := New(model.ModuleReading, svc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	loadErr := c.Load(context.Background())
	var genErr *llm.GenerationError
	if !errors.As(loadErr, &genErr) {
		t.Fatalf("Load = %v, want *GenerationError", loadErr)
	}
	if c.State() != StateCancelled {
		t.Errorf("state = %s, a failed load must cancel the session", c.State())
	}
	// No retry from here: the session is terminal.
	if err := c.Load(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Load after failure = %v, want ErrInvalidState", err)
	}
}

func TestCancelDiscardsLateResponse(t *testing.T) {
	release := make(chan struct{})
	svc := &blockingService{
		fake:    &fakeService{content: readingContent()},
		entered: make(chan struct{}),
		release: release,
	}
	c, err := New(model.ModuleReading, svc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()

	<-svc.entered
	c.Cancel()
	close(release)

	if err := <-done; !errors.Is(err, ErrCancelled) {
		t.Errorf("Load resolved after cancel = %v, want ErrCancelled", err)
	}
	if c.State() != StateCancelled {
		t.Errorf("state = %s, want cancelled", c.State())
	}
	if _, ok := c.Result(); ok {
		t.Error("a discarded response must not produce a result")
	}
}

// blockingService parks GenerateContent until released so tests can cancel
// mid-flight.
type blockingService struct {
	fake    *fakeService
	entered chan struct{}
	release chan struct{}
}

func (b *blockingService) GenerateContent(ctx context.Context, module model.Module) (model.TestContent, error) {
	close(b.entered)
	<-b.release
	return b.fake.GenerateContent(ctx, module)
}

func (b *blockingService) GradeObjective(ctx context.Context, module model.Module, questions []model.Question, answers map[int]string, rawScore int) (model.FeedbackRecord, error) {
	return b.fake.GradeObjective(ctx, module, questions, answers, rawScore)
}

func (b *blockingService) GradeWriting(ctx context.Context, answers model.WritingAnswers, prompt model.WritingPrompt) (model.FeedbackRecord, error) {
	return b.fake.GradeWriting(ctx, answers, prompt)
}

func (b *blockingService) GradeSpeaking(ctx context.Context, audio model.AudioPayload, prompts model.SpeakingPrompts) (model.FeedbackRecord, error) {
	return b.fake.GradeSpeaking(ctx, audio, prompts)
}

func TestGradingFailureIsRecoverable(t *testing.T) {
	svc := &fakeService{gradeErr: &llm.GradingError{Err: errors.New("timeout")}}
	c := startReading(t, svc)

	if err := c.RecordAnswer(1, "moraine"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	_, err := c.SubmitObjective(context.Background())
	var grdErr *llm.GradingError
	if !errors.As(err, &grdErr) {
		t.Fatalf("SubmitObjective = %v, want *GradingError", err)
	}
	if c.State() != StateSubmitting {
		t.Errorf("state = %s, a grading failure must stay in submitting", c.State())
	}
	firstAnswers := svc.gotAnswers
	firstRaw := svc.gotRawScore

	// Retry without any mutation sends the identical payload.
	svc.gradeErr = nil
	res, err := c.SubmitObjective(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if svc.gradeCalls != 2 {
		t.Errorf("gradeCalls = %d, want 2", svc.gradeCalls)
	}
	if svc.gotRawScore != firstRaw {
		t.Errorf("retry raw score = %d, want %d", svc.gotRawScore, firstRaw)
	}
	if len(svc.gotAnswers) != len(firstAnswers) {
		t.Errorf("retry answers = %v, want identical to first attempt", svc.gotAnswers)
	}
	if res.Objective.Correct != 1 {
		t.Errorf("Correct = %d, want 1", res.Objective.Correct)
	}
	if c.State() != StateComplete {
		t.Errorf("state = %s, want complete", c.State())
	}
}

func TestWritingEmptySubmission(t *testing.T) {
	svc := &fakeService{content: model.TestContent{Writing: &model.WritingPrompt{Task1: "Chart", Task2: "Essay"}}}
	c, err := New(model.ModuleWriting, svc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// No answers recorded at all: submission still proceeds with empty text.
	res, err := c.SubmitWriting(context.Background())
	if err != nil {
		t.Fatalf("SubmitWriting: %v", err)
	}
	if svc.gotWriting.Task1 != "" || svc.gotWriting.Task2 != "" {
		t.Errorf("grader received %+v, want empty responses", svc.gotWriting)
	}
	if svc.gotPrompt.Task1 != "Chart" {
		t.Errorf("grader prompt = %+v, want original prompts", svc.gotPrompt)
	}
	if res.Objective != nil {
		t.Error("writing results carry no objective score")
	}
}

func TestWritingAnswerGuards(t *testing.T) {
	svc := &fakeService{content: model.TestContent{Writing: &model.WritingPrompt{Task1: "t1", Task2: "t2"}}}
	c, err := New(model.ModuleWriting, svc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := c.RecordAnswer(1, "x"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("RecordAnswer on writing module = %v, want ErrInvalidState", err)
	}
	if err := c.SetWritingAnswers("draft one", "draft two"); err != nil {
		t.Fatalf("SetWritingAnswers: %v", err)
	}
	if got := c.WritingAnswers(); got.Task1 != "draft one" || got.Task2 != "draft two" {
		t.Errorf("WritingAnswers = %+v", got)
	}
}

func TestSpeakingFullRun(t *testing.T) {
	svc := &fakeService{}
	c := startSpeaking(t, svc)

	if c.Stage() != StageIntro {
		t.Fatalf("stage = %s, want intro", c.Stage())
	}
	// Part advancement and finish are gated until capture starts.
	if _, err := c.FinishSpeakingCapture(context.Background()); err == nil {
		t.Error("finish before finalize stage should fail")
	}

	if err := c.StartSpeakingCapture(context.Background(), grantedMic{}); err != nil {
		t.Fatalf("StartSpeakingCapture: %v", err)
	}
	if c.Stage() != StagePart1 {
		t.Fatalf("stage = %s, want part1", c.Stage())
	}
	if !c.Recording() {
		t.Error("capture should be active after start")
	}

	if err := c.AppendSpeakingChunk([]byte("p1 ")); err != nil {
		t.Fatalf("AppendSpeakingChunk: %v", err)
	}
	for _, want := range []SpeakingStage{StagePart2, StagePart3, StageFinalize} {
		if err := c.AdvanceSpeakingPart(); err != nil {
			t.Fatalf("AdvanceSpeakingPart: %v", err)
		}
		if c.Stage() != want {
			t.Fatalf("stage = %s, want %s", c.Stage(), want)
		}
	}
	if err := c.AdvanceSpeakingPart(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("advance past finalize = %v, want ErrInvalidState", err)
	}

	if err := c.AppendSpeakingChunk([]byte("p3")); err != nil {
		t.Fatalf("AppendSpeakingChunk: %v", err)
	}

	res, err := c.FinishSpeakingCapture(context.Background())
	if err != nil {
		t.Fatalf("FinishSpeakingCapture: %v", err)
	}
	if string(svc.gotAudio.Data) != "p1 p3" {
		t.Errorf("grader audio = %q, want the full continuous capture", svc.gotAudio.Data)
	}
	if svc.gotAudio.MIMEType != media.MIMEWebM {
		t.Errorf("audio MIME = %q, want %q", svc.gotAudio.MIMEType, media.MIMEWebM)
	}
	if svc.gotSpeaking.Part2 != "Describe a skill you learned recently." {
		t.Errorf("grader prompts = %+v, want every shown prompt", svc.gotSpeaking)
	}
	if res.Feedback.BandScore != 7.5 {
		t.Errorf("band = %v, want 7.5", res.Feedback.BandScore)
	}
	if c.Recording() {
		t.Error("capture must be released after completion")
	}
}

func TestSpeakingPermissionDenied(t *testing.T) {
	c := startSpeaking(t, &fakeService{})

	err := c.StartSpeakingCapture(context.Background(), deniedMic{})
	var permErr *media.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("StartSpeakingCapture = %v, want *PermissionError", err)
	}
	if c.State() != StateCancelled {
		t.Errorf("state = %s, a denied microphone must cancel the session", c.State())
	}
	if c.Recording() {
		t.Error("no recording buffer may exist after denial")
	}
}

func TestSpeakingGradingRetryReusesCapture(t *testing.T) {
	svc := &fakeService{gradeErr: &llm.GradingError{Err: errors.New("503")}}
	c := startSpeaking(t, svc)

	if err := c.StartSpeakingCapture(context.Background(), grantedMic{}); err != nil {
		t.Fatalf("StartSpeakingCapture: %v", err)
	}
	if err := c.AppendSpeakingChunk([]byte("audio")); err != nil {
		t.Fatalf("AppendSpeakingChunk: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.AdvanceSpeakingPart(); err != nil {
			t.Fatalf("AdvanceSpeakingPart: %v", err)
		}
	}

	if _, err := c.FinishSpeakingCapture(context.Background()); err == nil {
		t.Fatal("first finish should fail")
	}
	if c.State() != StateSubmitting {
		t.Fatalf("state = %s, want submitting", c.State())
	}

	svc.gradeErr = nil
	res, err := c.FinishSpeakingCapture(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if string(svc.gotAudio.Data) != "audio" {
		t.Errorf("retry audio = %q, want the original capture without re-recording", svc.gotAudio.Data)
	}
	if res.Module != model.ModuleSpeaking {
		t.Errorf("Module = %s, want Speaking", res.Module)
	}
}

func TestSubmitBusy(t *testing.T) {
	release := make(chan struct{})
	blocking := &blockingGrader{release: release, entered: make(chan struct{})}
	c := startReading(t, &fakeService{})
	c.svc = blocking

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitObjective(context.Background())
		done <- err
	}()

	<-blocking.entered
	if _, err := c.SubmitObjective(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent submit = %v, want ErrBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first submit = %v, want nil", err)
	}
}

// blockingGrader parks GradeObjective until released.
type blockingGrader struct {
	fakeService
	entered chan struct{}
	release chan struct{}
}

func (b *blockingGrader) GradeObjective(ctx context.Context, module model.Module, questions []model.Question, answers map[int]string, rawScore int) (model.FeedbackRecord, error) {
	close(b.entered)
	<-b.release
	return model.FeedbackRecord{Module: module, BandScore: 7}, nil
}

func TestCancelIsIdempotent(t *testing.T) {
	c := startReading(t, &fakeService{})
	c.Cancel()
	if c.State() != StateCancelled {
		t.Fatalf("state = %s, want cancelled", c.State())
	}
	c.Cancel() // no-op
	if c.State() != StateCancelled {
		t.Errorf("repeated cancel changed state to %s", c.State())
	}

	// Complete sessions are not demoted by a late cancel.
	svc := &fakeService{}
	done := startReading(t, svc)
	if _, err := done.SubmitObjective(context.Background()); err != nil {
		t.Fatalf("SubmitObjective: %v", err)
	}
	done.Cancel()
	if done.State() != StateComplete {
		t.Errorf("cancel after completion changed state to %s", done.State())
	}
}

func TestListeningPlayerLifecycle(t *testing.T) {
	content := readingContent()
	content.Audio = &model.AudioPayload{MIMEType: "audio/mpeg", Data: []byte("mp3")}
	svc := &fakeService{content: content}

	c, err := New(model.ModuleListening, svc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	p := c.Player()
	if p == nil {
		t.Fatal("listening session should own a player")
	}
	p.Play()
	if !p.Playing() {
		t.Fatal("player should be playing")
	}

	c.Cancel()
	if p.Playing() {
		t.Error("cancellation must halt playback")
	}
	if c.Player() != nil {
		t.Error("a cancelled session must release its player")
	}
}
