package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/worldkeeper/worldkeeper/internal/event"
	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

// listPlayers handles GET /player
func (s *Server) listPlayers(rw http.ResponseWriter, r *http.Request) {
	players := s.manager.Server().Players()
	out := make([]host.PlayerInfo, 0, len(players))
	for _, p := range players {
		out = append(out, p.Info())
	}
	writeJSON(rw, http.StatusOK, out)
}

// JoinRequest is the body of POST /player.
type JoinRequest struct {
	Name        string `json:"name"`
	AllowFlight bool   `json:"allowFlight,omitempty"`
}

// joinPlayer handles POST /player. The new player is sent to the spawn
// when one is set.
func (s *Server) joinPlayer(rw http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, "name required")
		return
	}
	if s.manager.Server().PlayerByName(req.Name) != nil {
		writeError(rw, http.StatusConflict, ErrCodeConflict, "player already connected: "+req.Name)
		return
	}

	var p *host.Player
	if err := s.onMain(r, func() {
		p = s.manager.Server().Join(req.Name)
		p.SetAllowFlight(req.AllowFlight)
		s.manager.Spawn().Teleport(p)
	}); err != nil {
		writeError(rw, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}

	s.manager.Bus().Publish(event.Event{
		Type: event.PlayerJoined,
		Data: event.PlayerData{ID: p.ID, Name: p.Name, World: p.World()},
	})
	writeJSON(rw, http.StatusCreated, p.Info())
}

// quitPlayer handles DELETE /player/{playerID}
func (s *Server) quitPlayer(rw http.ResponseWriter, r *http.Request) {
	p := s.lookupPlayer(chi.URLParam(r, "playerID"))
	if p == nil {
		writeError(rw, http.StatusNotFound, ErrCodeNotFound, "player not found")
		return
	}
	if err := s.onMain(r, func() { s.manager.Server().Quit(p) }); err != nil {
		writeError(rw, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}

	s.manager.Bus().Publish(event.Event{
		Type: event.PlayerQuit,
		Data: event.PlayerData{ID: p.ID, Name: p.Name},
	})
	writeSuccess(rw)
}

// SpawnResponse is the body of GET /spawn.
type SpawnResponse struct {
	Location *types.Location `json:"location"`
}

// getSpawn handles GET /spawn
func (s *Server) getSpawn(rw http.ResponseWriter, r *http.Request) {
	loc, ok := s.manager.Spawn().Location()
	if !ok {
		writeError(rw, http.StatusNotFound, ErrCodeNotFound, "no spawn set")
		return
	}
	writeJSON(rw, http.StatusOK, SpawnResponse{Location: &loc})
}

// setSpawn handles PUT /spawn
func (s *Server) setSpawn(rw http.ResponseWriter, r *http.Request) {
	var loc types.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil || loc.World == "" {
		writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, "location with world required")
		return
	}
	if _, err := s.manager.Registry().Get(loc.World); err != nil {
		writeDomainError(rw, err)
		return
	}
	if err := s.manager.Spawn().Set(r.Context(), loc); err != nil {
		writeDomainError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, SpawnResponse{Location: &loc})
}

// removeSpawn handles DELETE /spawn
func (s *Server) removeSpawn(rw http.ResponseWriter, r *http.Request) {
	if err := s.manager.Spawn().Remove(r.Context()); err != nil {
		writeDomainError(rw, err)
		return
	}
	writeSuccess(rw)
}
