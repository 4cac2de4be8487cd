package media

import (
	"sync"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

// Player tracks play/pause state for one bound audio payload. Decoding is
// lazy: the payload is handed to the client untouched and decoded there.
// One playback position, no seeking.
type Player struct {
	mu      sync.Mutex
	payload model.AudioPayload
	playing bool
}

// NewPlayer binds a player to an audio payload without starting it.
func NewPlayer(payload model.AudioPayload) *Player {
	return &Player{payload: payload}
}

// Play starts playback. A no-op if already playing.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
}

// Pause halts playback. A no-op if already paused.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// Ended is the end-of-stream notification; it flips state to paused.
func (p *Player) Ended() {
	p.Pause()
}

// Playing reports the current playback state.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Payload returns the bound audio.
func (p *Player) Payload() model.AudioPayload {
	return p.payload
}
