package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// World routes
	r.Route("/world", func(r chi.Router) {
		r.Get("/", s.listWorlds)
		r.Post("/", s.createWorld)
		r.Get("/discovered", s.listDiscovered)
		r.Post("/import", s.importWorld)

		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.getWorld)
			r.Delete("/", s.deleteWorld)
			r.Patch("/", s.renameWorld)
			r.Post("/load", s.loadWorld)
			r.Post("/unload", s.unloadWorld)
			r.Post("/teleport", s.teleportToWorld)

			// Backups
			r.Get("/backup", s.listBackups)
			r.Post("/backup", s.createBackup)
			r.Delete("/backup/{backupID}", s.deleteBackup)
			r.Post("/backup/{backupID}/restore", s.restoreBackup)
		})
	})

	// Player routes
	r.Route("/player", func(r chi.Router) {
		r.Get("/", s.listPlayers)
		r.Post("/", s.joinPlayer)
		r.Delete("/{playerID}", s.quitPlayer)
	})

	// Spawn
	r.Get("/spawn", s.getSpawn)
	r.Put("/spawn", s.setSpawn)
	r.Delete("/spawn", s.removeSpawn)

	// Event streaming (SSE)
	r.Get("/event", s.events)
}
