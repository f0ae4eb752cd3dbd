package host

import (
	"sync"

	"github.com/google/uuid"

	"github.com/worldkeeper/worldkeeper/pkg/types"
)

// Player is a connected requester. Its location decides which level it
// occupies.
type Player struct {
	ID   uuid.UUID
	Name string

	mu          sync.RWMutex
	location    types.Location
	online      bool
	flying      bool
	allowFlight bool
	title       string
	notices     []string
	sounds      []string
}

// Location returns the current position.
func (p *Player) Location() types.Location {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.location
}

func (p *Player) setLocation(loc types.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = loc
}

// World returns the name of the level the player is in.
func (p *Player) World() string {
	return p.Location().World
}

// Online reports whether the player is still connected.
func (p *Player) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// Notify sends a one-line message to the player.
func (p *Player) Notify(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, msg)
}

// Notices returns every message sent to the player.
func (p *Player) Notices() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.notices...)
}

// LastNotice returns the most recent message, or "".
func (p *Player) LastNotice() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.notices) == 0 {
		return ""
	}
	return p.notices[len(p.notices)-1]
}

// ShowTitle displays a title until it is reset.
func (p *Player) ShowTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
}

func (p *Player) ResetTitle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = ""
}

// Title returns the title currently shown.
func (p *Player) Title() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.title
}

// PlaySound records a sound effect played to the player.
func (p *Player) PlaySound(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sounds = append(p.sounds, name)
}

// Sounds returns the sound effects played so far.
func (p *Player) Sounds() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.sounds...)
}

// SetAllowFlight toggles whether the player may fly.
func (p *Player) SetAllowFlight(allow bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowFlight = allow
	if !allow {
		p.flying = false
	}
}

// SetFlying starts or stops flight. Flight is only possible when allowed.
func (p *Player) SetFlying(flying bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flying = flying && p.allowFlight
}

func (p *Player) AllowFlight() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.allowFlight
}

func (p *Player) Flying() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.flying
}

// PlayerInfo is a JSON-friendly snapshot of a player.
type PlayerInfo struct {
	ID       uuid.UUID      `json:"id"`
	Name     string         `json:"name"`
	Location types.Location `json:"location"`
	Online   bool           `json:"online"`
	Title    string         `json:"title,omitempty"`
	Notices  []string       `json:"notices,omitempty"`
}

// Info returns a snapshot of the player.
func (p *Player) Info() PlayerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PlayerInfo{
		ID:       p.ID,
		Name:     p.Name,
		Location: p.location,
		Online:   p.online,
		Title:    p.title,
		Notices:  append([]string(nil), p.notices...),
	}
}
