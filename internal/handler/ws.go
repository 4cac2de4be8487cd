package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/i18n"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/media"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/session"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// Control events on the speaking stream. Audio itself travels as binary
// frames; everything else is a small JSON text frame.
type wsEvent struct {
	Event string `json:"event"`
	Error string `json:"error,omitempty"`
}

const (
	eventGranted   = "granted"
	eventDenied    = "denied"
	eventRecording = "recording"
	eventStop      = "stop"
	eventStopped   = "stopped"
)

func writeEvent(conn *websocket.Conn, ev wsEvent) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(ev)
}

// wsMicrophone adapts the browser's permission handshake to the capture
// adapter: opening the microphone means waiting for the client to report
// the getUserMedia outcome.
type wsMicrophone struct {
	conn *websocket.Conn
}

func (m wsMicrophone) Open(ctx context.Context) error {
	deadline := time.Now().Add(2 * time.Minute)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	m.conn.SetReadDeadline(deadline)

	var ev wsEvent
	if err := m.conn.ReadJSON(&ev); err != nil {
		return err
	}
	switch ev.Event {
	case eventGranted:
		return nil
	case eventDenied:
		return errors.New("microphone access denied by user")
	}
	return errors.New("unexpected event " + ev.Event + " during microphone handshake")
}

// handleSpeakingSocket runs the speaking capture stream: permission
// handshake, then binary audio chunks until the client sends stop or
// disconnects. Grading happens separately over HTTP once the sub-machine
// reaches its final stage.
func (h *Handler) handleSpeakingSocket(w http.ResponseWriter, r *http.Request) {
	s := h.shellFor(w, r)
	c, ok := s.Controller()
	if !ok {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", session.ErrInvalidState)
		return
	}
	if c.Module() != model.ModuleSpeaking {
		h.writeError(w, r, http.StatusConflict, "ErrInvalidState", session.ErrInvalidState)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if err := c.StartSpeakingCapture(r.Context(), wsMicrophone{conn: conn}); err != nil {
		var permErr *media.PermissionError
		code := "ErrInvalidState"
		if errors.As(err, &permErr) {
			code = "ErrMicrophone"
			slog.Warn("speaking capture denied", "error", err)
		} else {
			slog.Error("speaking capture failed", "error", err)
		}
		// A failed start is terminal for the session; put the client back
		// on the dashboard so a new test can begin.
		if c.State() == session.StateCancelled {
			_ = s.CancelTest()
		}
		_ = writeEvent(conn, wsEvent{Event: "error", Error: i18n.T(r.Context(), code)})
		return
	}

	if err := writeEvent(conn, wsEvent{Event: eventRecording}); err != nil {
		return
	}

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("speaking stream closed unexpectedly", "error", err)
			}
			// The buffered capture stays with the session; the client can
			// still finish over HTTP.
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := c.AppendSpeakingChunk(data); err != nil {
				slog.Warn("speaking chunk rejected", "error", err)
				_ = writeEvent(conn, wsEvent{Event: "error", Error: i18n.T(r.Context(), "ErrInvalidState")})
				return
			}
		case websocket.TextMessage:
			var ev wsEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				_ = writeEvent(conn, wsEvent{Event: "error", Error: "malformed control frame"})
				continue
			}
			if ev.Event == eventStop {
				_ = writeEvent(conn, wsEvent{Event: eventStopped})
				return
			}
		}
	}
}
