// Package server provides the HTTP admin API for worldkeeper.
//
// The API is a chi router exposing worlds, their backups, connected
// players and the spawn:
//
//   - /world: list, create, discover and import worlds
//   - /world/{name}: inspect, rename, delete, load, unload and teleport
//   - /world/{name}/backup: list, create, delete and restore backups
//   - /player: join and quit simulated players
//   - /spawn: read, move or clear the spawn
//   - /event: lifecycle events streamed as Server-Sent Events
//
// Handlers run on HTTP goroutines. Anything that touches resident levels
// or players is handed to the scheduler's main context with onMain and
// waited for, bounded by the request context and Config.CallTimeout.
// Backup creation and restore block the request until they finish.
//
// Errors are returned as {"error": {"code", "message", "details"}} with
// the status chosen by writeDomainError.
package server
