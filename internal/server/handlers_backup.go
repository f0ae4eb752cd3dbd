package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

// listBackups handles GET /world/{name}/backup
func (s *Server) listBackups(rw http.ResponseWriter, r *http.Request) {
	w, ok := s.lookupWorld(rw, r)
	if !ok {
		return
	}
	backups, err := s.backups.List(r.Context(), w)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	if backups == nil {
		backups = []types.Backup{}
	}
	writeJSON(rw, http.StatusOK, backups)
}

// createBackup handles POST /world/{name}/backup
func (s *Server) createBackup(rw http.ResponseWriter, r *http.Request) {
	w, ok := s.lookupWorld(rw, r)
	if !ok {
		return
	}
	b, err := s.backups.CreateBackup(r.Context(), w)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, b)
}

// deleteBackup handles DELETE /world/{name}/backup/{backupID}
func (s *Server) deleteBackup(rw http.ResponseWriter, r *http.Request) {
	w, ok := s.lookupWorld(rw, r)
	if !ok {
		return
	}
	if err := s.backups.Delete(r.Context(), w, chi.URLParam(r, "backupID")); err != nil {
		writeDomainError(rw, err)
		return
	}
	writeSuccess(rw)
}

// restoreBackup handles POST /world/{name}/backup/{backupID}/restore.
// The world is loaded first when it is not resident.
func (s *Server) restoreBackup(rw http.ResponseWriter, r *http.Request) {
	w, ok := s.lookupWorld(rw, r)
	if !ok {
		return
	}

	var req PlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
		return
	}
	var requester *host.Player
	if req.Player != "" {
		requester = s.lookupPlayer(req.Player)
		if requester == nil {
			writeError(rw, http.StatusNotFound, ErrCodeNotFound, "player not found: "+req.Player)
			return
		}
		if !s.manager.Permissions().CanModify(requester, w) {
			writeError(rw, http.StatusForbidden, ErrCodePermissionDenied, "player may not modify "+w.Name())
			return
		}
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

	if err := s.backups.Restore(r.Context(), w, chi.URLParam(r, "backupID"), requester); err != nil {
		writeDomainError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, s.worldResponse(w))
}
