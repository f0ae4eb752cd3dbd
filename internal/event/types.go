package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

// Cancellable events are raised with Bus.Allow before the action happens.
const (
	WorldLoad   EventType = "world.load"
	WorldUnload EventType = "world.unload"
)

// Notifications raised after the fact.
const (
	WorldLoaded     EventType = "world.loaded"
	WorldUnloaded   EventType = "world.unloaded"
	WorldDiscovered EventType = "world.discovered"
	BackupCreated   EventType = "backup.created"
	BackupDeleted   EventType = "backup.deleted"
	BackupRestored  EventType = "backup.restored"
	PlayerJoined    EventType = "player.joined"
	PlayerQuit      EventType = "player.quit"
	PlayerMoved     EventType = "player.moved"
)

// WorldData is the data for world.* lifecycle events.
type WorldData struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// WorldDiscoveredData is the data for world.discovered events.
type WorldDiscoveredData struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// BackupData is the data for backup.* events.
type BackupData struct {
	WorldID   uuid.UUID `json:"worldID"`
	World     string    `json:"world"`
	BackupID  string    `json:"backupID"`
	CreatedAt time.Time `json:"createdAt"`
}

// PlayerData is the data for player.* events.
type PlayerData struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	World string    `json:"world,omitempty"`
}
