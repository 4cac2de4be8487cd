package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/i18n"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/llm"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/media"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/results"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/session"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/shell"
)

const clientCookie = "gate_client"

// Handler holds shared dependencies for HTTP handlers. Each browser client
// is identified by a cookie and owns one view shell.
type Handler struct {
	svc      llm.Service
	config   model.AppConfig
	upgrader websocket.Upgrader

	mu     sync.Mutex
	shells map[string]*shell.Shell
}

// New creates a new Handler.
func New(svc llm.Service, cfg model.AppConfig) (*Handler, error) {
	return &Handler{
		svc:      svc,
		config:   cfg,
		upgrader: buildUpgrader(cfg.AllowedOrigins),
		shells:   make(map[string]*shell.Shell),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/state", h.handleState)
	r.Post("/api/test/start", h.handleStartTest)
	r.Post("/api/test/answer", h.handleAnswer)
	r.Put("/api/test/writing", h.handleWriting)
	r.Post("/api/test/submit", h.handleSubmit)
	r.Post("/api/test/cancel", h.handleCancel)
	r.Get("/api/test/audio", h.handleAudio)
	r.Post("/api/test/audio/play", h.handleAudioPlay)
	r.Post("/api/test/audio/pause", h.handleAudioPause)
	r.Post("/api/test/audio/ended", h.handleAudioEnded)
	r.Post("/api/test/speaking/advance", h.handleSpeakingAdvance)
	r.Post("/api/test/speaking/finish", h.handleSpeakingFinish)
	r.Get("/ws/speaking", h.handleSpeakingSocket)
	r.Post("/api/results/back", h.handleBack)
}

// shellFor returns the client's shell, creating it (and the identifying
// cookie) on first contact.
func (h *Handler) shellFor(w http.ResponseWriter, r *http.Request) *shell.Shell {
	id := ""
	if c, err := r.Cookie(clientCookie); err == nil {
		id = c.Value
	}
	if id == "" {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     clientCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.shells[id]
	if !ok {
		s = shell.New()
		h.shells[id] = s
	}
	return s
}

// controllerFor resolves the client's active session or writes a conflict
// response.
func (h *Handler) controllerFor(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	s := h.shellFor(w, r)
	c, ok := s.Controller()
	if !ok {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", session.ErrInvalidState)
		return nil, false
	}
	return c, true
}

// stateResponse is the full client-visible snapshot: which screen is
// active and everything that screen needs to render.
type stateResponse struct {
	View     string             `json:"view"`
	Notice   string             `json:"notice,omitempty"`
	Module   model.Module       `json:"module,omitempty"`
	State    session.State      `json:"state,omitempty"`
	Stage    string             `json:"stage,omitempty"`
	Content  *clientContent     `json:"content,omitempty"`
	Answers  map[int]string     `json:"answers,omitempty"`
	Writing  *clientWriting     `json:"writing,omitempty"`
	Playing  bool               `json:"playing,omitempty"`
	HasAudio bool               `json:"hasAudio,omitempty"`
	Results  *results.Breakdown `json:"results,omitempty"`
}

// clientContent mirrors TestContent with everything the client must not
// see removed: correct answers stay server-side, and audio is streamed
// separately.
type clientContent struct {
	PassageText string                 `json:"passageText,omitempty"`
	Questions   []clientQuestion       `json:"questions,omitempty"`
	Writing     *model.WritingPrompt   `json:"writing,omitempty"`
	Speaking    *model.SpeakingPrompts `json:"speaking,omitempty"`
}

type clientQuestion struct {
	ID      int              `json:"id"`
	Text    string           `json:"text"`
	Kind    model.AnswerKind `json:"type"`
	Options []string         `json:"options,omitempty"`
	Tag     string           `json:"questionTag"`
}

type clientWriting struct {
	Task1 string `json:"task1"`
	Task2 string `json:"task2"`
	Empty bool   `json:"empty"`
}

func sanitizeContent(module model.Module, tc model.TestContent) *clientContent {
	cc := &clientContent{
		Writing:  tc.Writing,
		Speaking: tc.Speaking,
	}
	// The reading passage is for the candidate; the listening transcript
	// exists only to drive synthesis and never leaves the server.
	if module == model.ModuleReading {
		cc.PassageText = tc.PassageText
	}
	for _, q := range tc.Questions {
		cc.Questions = append(cc.Questions, clientQuestion{
			ID:      q.ID,
			Text:    q.Text,
			Kind:    q.Kind,
			Options: q.Options,
			Tag:     q.Tag,
		})
	}
	return cc
}

func (h *Handler) snapshot(s *shell.Shell) stateResponse {
	switch v := s.View().(type) {
	case shell.Running:
		c := v.Session
		resp := stateResponse{
			View:   v.Name(),
			Module: c.Module(),
			State:  c.State(),
		}
		if c.Module() == model.ModuleSpeaking {
			resp.Stage = c.Stage().String()
		}
		if resp.State == session.StateInteracting || resp.State == session.StateSubmitting {
			resp.Content = sanitizeContent(c.Module(), c.Content())
			if c.Module().Objective() {
				resp.Answers = c.Answers()
			}
			if c.Module() == model.ModuleWriting {
				wa := c.WritingAnswers()
				resp.Writing = &clientWriting{
					Task1: wa.Task1,
					Task2: wa.Task2,
					Empty: wa.Task1 == "" || wa.Task2 == "",
				}
			}
			if p := c.Player(); p != nil {
				resp.HasAudio = true
				resp.Playing = p.Playing()
			}
		}
		return resp
	case shell.Results:
		br := results.Build(v.Result)
		return stateResponse{View: v.Name(), Module: v.Result.Module, Results: &br}
	default:
		return stateResponse{View: v.Name()}
	}
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	s := h.shellFor(w, r)
	writeJSON(w, http.StatusOK, h.snapshot(s))
}

func (h *Handler) handleStartTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Module model.Module `json:"module"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "ErrValidation", err)
		return
	}

	c, err := session.New(req.Module, h.svc)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "ErrValidation", err)
		return
	}

	s := h.shellFor(w, r)
	if err := s.StartTest(c); err != nil {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", err)
		return
	}

	if err := c.Load(r.Context()); err != nil {
		// A failed load is fatal for the session; return the client to
		// the dashboard.
		slog.Error("content generation failed", "module", req.Module, "error", err)
		_ = s.CancelTest()
		h.writeError(w, r, http.StatusBadGateway, "ErrGeneration", err)
		return
	}

	writeJSON(w, http.StatusOK, h.snapshot(s))
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controllerFor(w, r)
	if !ok {
		return
	}

	var req struct {
		QuestionID int    `json:"questionId"`
		Answer     string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "ErrValidation", err)
		return
	}

	if err := c.RecordAnswer(req.QuestionID, req.Answer); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWriting(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controllerFor(w, r)
	if !ok {
		return
	}

	var req struct {
		Task1 string `json:"task1"`
		Task2 string `json:"task2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "ErrValidation", err)
		return
	}

	if err := c.SetWritingAnswers(req.Task1, req.Task2); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s := h.shellFor(w, r)
	c, ok := s.Controller()
	if !ok {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", session.ErrInvalidState)
		return
	}

	var (
		res  model.SessionResult
		err  error
		warn string
	)
	switch c.Module() {
	case model.ModuleListening, model.ModuleReading:
		res, err = c.SubmitObjective(r.Context())
	case model.ModuleWriting:
		// Empty responses are graded as written; the warning never blocks.
		if wa := c.WritingAnswers(); wa.Task1 == "" || wa.Task2 == "" {
			warn = i18n.T(r.Context(), "WarnEmptyWriting")
		}
		res, err = c.SubmitWriting(r.Context())
	default:
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", session.ErrInvalidState)
		return
	}
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	if err := s.FinishTest(res); err != nil {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", err)
		return
	}
	resp := h.snapshot(s)
	resp.Notice = warn
	if res.Objective != nil {
		resp.Notice = i18n.Td(r.Context(), "RawScore", map[string]any{
			"Correct": res.Objective.Correct,
			"Total":   res.Objective.Total,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	s := h.shellFor(w, r)
	if err := s.CancelTest(); err != nil {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", err)
		return
	}
	resp := h.snapshot(s)
	resp.Notice = i18n.T(r.Context(), "NoticeCancelled")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controllerFor(w, r)
	if !ok {
		return
	}
	p := c.Player()
	if p == nil {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", session.ErrInvalidState)
		return
	}
	payload := p.Payload()
	w.Header().Set("Content-Type", payload.MIMEType)
	if _, err := w.Write(payload.Data); err != nil {
		slog.Error("audio write failed", "error", err)
	}
}

func (h *Handler) handleAudioPlay(w http.ResponseWriter, r *http.Request) {
	h.playerAction(w, r, func(p *media.Player) { p.Play() })
}

func (h *Handler) handleAudioPause(w http.ResponseWriter, r *http.Request) {
	h.playerAction(w, r, func(p *media.Player) { p.Pause() })
}

func (h *Handler) handleAudioEnded(w http.ResponseWriter, r *http.Request) {
	h.playerAction(w, r, func(p *media.Player) { p.Ended() })
}

func (h *Handler) playerAction(w http.ResponseWriter, r *http.Request, fn func(*media.Player)) {
	c, ok := h.controllerFor(w, r)
	if !ok {
		return
	}
	p := c.Player()
	if p == nil {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", session.ErrInvalidState)
		return
	}
	fn(p)
	writeJSON(w, http.StatusOK, map[string]bool{"playing": p.Playing()})
}

func (h *Handler) handleSpeakingAdvance(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controllerFor(w, r)
	if !ok {
		return
	}
	if err := c.AdvanceSpeakingPart(); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stage": c.Stage().String()})
}

func (h *Handler) handleSpeakingFinish(w http.ResponseWriter, r *http.Request) {
	s := h.shellFor(w, r)
	c, ok := s.Controller()
	if !ok {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", session.ErrInvalidState)
		return
	}

	res, err := c.FinishSpeakingCapture(r.Context())
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	if err := s.FinishTest(res); err != nil {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot(s))
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	s := h.shellFor(w, r)
	if err := s.Back(); err != nil {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot(s))
}

// writeSessionError maps controller and service errors onto HTTP statuses
// and localized notices.
func (h *Handler) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		valErr  *session.ValidationError
		genErr  *llm.GenerationError
		grdErr  *llm.GradingError
		permErr *media.PermissionError
	)
	switch {
	case errors.As(err, &valErr):
		h.writeError(w, r, http.StatusBadRequest, "ErrValidation", err)
	case errors.As(err, &genErr):
		h.writeError(w, r, http.StatusBadGateway, "ErrGeneration", err)
	case errors.As(err, &grdErr):
		h.writeError(w, r, http.StatusBadGateway, "ErrGrading", err)
	case errors.As(err, &permErr):
		h.writeError(w, r, http.StatusForbidden, "ErrMicrophone", err)
	case errors.Is(err, session.ErrBusy):
		h.writeError(w, r, http.StatusConflict, "ErrBusy", err)
	default:
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", err)
	}
}

// writeError logs the detailed error server-side and sends the client a
// stable code plus the localized notice. Raw upstream payloads never leave
// the server.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msgID string, err error) {
	slog.Warn("request failed", "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, map[string]string{
		"code":   msgID,
		"notice": i18n.T(r.Context(), msgID),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
