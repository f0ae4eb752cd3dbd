package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/worldkeeper/worldkeeper/internal/event"
	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/internal/world"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

// WorldResponse describes a world and its current occupants.
type WorldResponse struct {
	world.Info
	Players []host.PlayerInfo `json:"players"`
}

func (s *Server) worldResponse(w *world.World) WorldResponse {
	players := s.manager.Server().PlayersIn(w.Name())
	infos := make([]host.PlayerInfo, 0, len(players))
	for _, p := range players {
		infos = append(infos, p.Info())
	}
	return WorldResponse{Info: w.Info(), Players: infos}
}

// lookupWorld resolves the {name} URL parameter, writing the error
// response when it is unknown.
func (s *Server) lookupWorld(rw http.ResponseWriter, r *http.Request) (*world.World, bool) {
	w, err := s.manager.Registry().Get(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(rw, err)
		return nil, false
	}
	return w, true
}

// lookupPlayer resolves a player by UUID or name.
func (s *Server) lookupPlayer(ref string) *host.Player {
	if id, err := uuid.Parse(ref); err == nil {
		return s.manager.Server().Player(id)
	}
	return s.manager.Server().PlayerByName(ref)
}

// listWorlds handles GET /world
func (s *Server) listWorlds(rw http.ResponseWriter, r *http.Request) {
	worlds := s.manager.Registry().All()
	out := make([]WorldResponse, 0, len(worlds))
	for _, w := range worlds {
		out = append(out, s.worldResponse(w))
	}
	writeJSON(rw, http.StatusOK, out)
}

// CreateWorldRequest is the body of POST /world.
type CreateWorldRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Template string `json:"template,omitempty"`
	Creator  string `json:"creator,omitempty"`
}

// createWorld handles POST /world
func (s *Server) createWorld(rw http.ResponseWriter, r *http.Request) {
	var req CreateWorldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
		return
	}

	typ := types.WorldNormal
	if req.Type != "" {
		t, err := types.ParseWorldType(req.Type)
		if err != nil {
			writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		typ = t
	}
	if typ == types.WorldTemplate && req.Template == "" {
		writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, "template required")
		return
	}

	w, err := s.manager.Create(r.Context(), req.Name, world.Data{
		Type:     typ,
		Template: req.Template,
		Creator:  req.Creator,
	})
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, s.worldResponse(w))
}

// getWorld handles GET /world/{name}
func (s *Server) getWorld(rw http.ResponseWriter, r *http.Request) {
	w, ok := s.lookupWorld(rw, r)
	if !ok {
		return
	}
	writeJSON(rw, http.StatusOK, s.worldResponse(w))
}

// deleteWorld handles DELETE /world/{name}
func (s *Server) deleteWorld(rw http.ResponseWriter, r *http.Request) {
	w, ok := s.lookupWorld(rw, r)
	if !ok {
		return
	}
	if err := s.manager.Delete(r.Context(), w); err != nil {
		writeDomainError(rw, err)
		return
	}
	if err := s.backups.Destroy(r.Context(), w); err != nil {
		writeDomainError(rw, err)
		return
	}
	writeSuccess(rw)
}

// RenameWorldRequest is the body of PATCH /world/{name}.
type RenameWorldRequest struct {
	Name string `json:"name"`
}

// renameWorld handles PATCH /world/{name}
func (s *Server) renameWorld(rw http.ResponseWriter, r *http.Request) {
	w, ok := s.lookupWorld(rw, r)
	if !ok {
		return
	}
	var req RenameWorldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, "name required")
		return
	}
	var renameErr error
	if err := s.onMain(r, func() {
		renameErr = s.manager.Registry().Rename(r.Context(), w, req.Name)
	}); err != nil {
		writeError(rw, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	if renameErr != nil {
		writeDomainError(rw, renameErr)
		return
	}
	writeJSON(rw, http.StatusOK, s.worldResponse(w))
}

// loadWorld handles POST /world/{name}/load
func (s *Server) loadWorld(rw http.ResponseWriter, r *http.Request) {
	w, ok := s.lookupWorld(rw, r)
	if !ok {
		return
	}
	var loadErr error
	if err := s.onMain(r, func() {
		_, loadErr = s.manager.Loader().Load(w)
	}); err != nil {
		writeError(rw, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	if loadErr != nil {
		writeDomainError(rw, loadErr)
		return
	}
	writeJSON(rw, http.StatusOK, s.worldResponse(w))
}

// unloadWorld handles POST /world/{name}/unload?save=false
func (s *Server) unloadWorld(rw http.ResponseWriter, r *http.Request) {
	w, ok := s.lookupWorld(rw, r)
	if !ok {
		return
	}
	save := true
	if v := r.URL.Query().Get("save"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, "save must be a boolean")
			return
		}
		save = parsed
	}

	var unloadErr error
	if err := s.onMain(r, func() {
		if occupants := s.manager.Server().PlayersIn(w.Name()); len(occupants) > 0 {
			unloadErr = errOccupied
			return
		}
		unloadErr = s.manager.Unloader().ForceUnload(w, save)
	}); err != nil {
		writeError(rw, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	if errors.Is(unloadErr, errOccupied) {
		writeError(rw, http.StatusConflict, ErrCodeConflict, unloadErr.Error())
		return
	}
	if unloadErr != nil {
		writeDomainError(rw, unloadErr)
		return
	}
	writeJSON(rw, http.StatusOK, s.worldResponse(w))
}

var errOccupied = errors.New("world has players in it")

// PlayerRequest names the player an operation acts for, by name or UUID.
type PlayerRequest struct {
	Player string `json:"player"`
}

// teleportToWorld handles POST /world/{name}/teleport
func (s *Server) teleportToWorld(rw http.ResponseWriter, r *http.Request) {
	w, ok := s.lookupWorld(rw, r)
	if !ok {
		return
	}
	var req PlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Player == "" {
		writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, "player required")
		return
	}
	p := s.lookupPlayer(req.Player)
	if p == nil {
		writeError(rw, http.StatusNotFound, ErrCodeNotFound, "player not found: "+req.Player)
		return
	}
	if !s.manager.Permissions().CanEnter(p, w) {
		writeError(rw, http.StatusForbidden, ErrCodePermissionDenied, "player may not enter "+w.Name())
		return
	}

	done := make(chan bool, 1)
	var teleportErr error
	if err := s.onMain(r, func() {
		teleportErr = s.manager.Teleporter().Teleport(w, p, func(ok bool) { done <- ok })
	}); err != nil {
		writeError(rw, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	if teleportErr != nil {
		writeDomainError(rw, teleportErr)
		return
	}

	select {
	case moved := <-done:
		if !moved {
			writeError(rw, http.StatusConflict, ErrCodeConflict, "player could not be moved")
			return
		}
	case <-r.Context().Done():
		return
	}

	s.manager.Bus().Publish(event.Event{
		Type: event.PlayerMoved,
		Data: event.PlayerData{ID: p.ID, Name: p.Name, World: p.World()},
	})
	writeJSON(rw, http.StatusOK, p.Info())
}

// listDiscovered handles GET /world/discovered
func (s *Server) listDiscovered(rw http.ResponseWriter, r *http.Request) {
	names := []string{}
	if s.importer != nil {
		names = append(names, s.importer.Discovered()...)
	}
	writeJSON(rw, http.StatusOK, names)
}

// ImportWorldRequest is the body of POST /world/import.
type ImportWorldRequest struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// importWorld handles POST /world/import
func (s *Server) importWorld(rw http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		writeError(rw, http.StatusServiceUnavailable, ErrCodeUnavailable, "importer disabled")
		return
	}
	var req ImportWorldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, "name required")
		return
	}
	var typ types.WorldType
	if req.Type != "" {
		t, err := types.ParseWorldType(req.Type)
		if err != nil {
			writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		typ = t
	}

	w, err := s.importer.Import(r.Context(), req.Name, typ)
	if err != nil {
		if errors.Is(err, world.ErrExists) || errors.Is(err, world.ErrInvalidName) {
			writeDomainError(rw, err)
			return
		}
		writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := s.onMain(r, func() { s.manager.Unloader().ManageUnload(w) }); err != nil {
		writeError(rw, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	writeJSON(rw, http.StatusCreated, s.worldResponse(w))
}
