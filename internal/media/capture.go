// Package media holds the capture and playback adapters owned by a test
// session. The actual microphone and speaker live in the browser; these
// adapters are the server-side halves (the chunk buffer and the playback
// state) fed by the transport layer.
package media

import (
	"context"
	"errors"
	"sync"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

// MIMEWebM is the container tag stamped on every finished capture.
const MIMEWebM = "audio/webm"

// ErrAlreadyRecording is returned by Start while a capture is active.
var ErrAlreadyRecording = errors.New("recording already in progress")

// PermissionError reports a denied microphone acquisition.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string { return "microphone access denied: " + e.Err.Error() }
func (e *PermissionError) Unwrap() error { return e.Err }

// Microphone acquires an audio input stream. The production implementation
// negotiates browser permission over the speaking WebSocket; tests inject
// fakes.
type Microphone interface {
	Open(ctx context.Context) error
}

// Recorder buffers discrete audio chunks from one continuous capture, in
// arrival order. At most one capture may be active at a time.
type Recorder struct {
	mu      sync.Mutex
	mic     Microphone
	active  bool
	started bool
	chunks  [][]byte
}

// NewRecorder creates a recorder bound to a microphone.
func NewRecorder(mic Microphone) *Recorder {
	return &Recorder{mic: mic}
}

// Start acquires the microphone and begins buffering. Denied access
// surfaces as *PermissionError and leaves no buffer behind; a second Start
// while active fails with ErrAlreadyRecording rather than restarting.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return ErrAlreadyRecording
	}
	if err := r.mic.Open(ctx); err != nil {
		return &PermissionError{Err: err}
	}
	r.active = true
	r.started = true
	r.chunks = nil
	return nil
}

// Append buffers one captured chunk. Empty chunks and chunks arriving
// outside an active capture are dropped.
func (r *Recorder) Append(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || len(chunk) == 0 {
		return
	}
	r.chunks = append(r.chunks, chunk)
}

// Stop halts capture and concatenates all buffered chunks, in capture
// order, into one payload. Stopping without a preceding successful Start is
// a no-op that yields no payload.
func (r *Recorder) Stop() (model.AudioPayload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return model.AudioPayload{}, false
	}
	r.active = false
	r.started = false

	var size int
	for _, c := range r.chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range r.chunks {
		data = append(data, c...)
	}
	r.chunks = nil

	return model.AudioPayload{MIMEType: MIMEWebM, Data: data}, true
}

// Recording reports whether a capture is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
