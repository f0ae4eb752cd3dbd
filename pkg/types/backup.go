package types

import (
	"time"

	"github.com/google/uuid"
)

// Backup is an immutable snapshot of one world's directory.
type Backup struct {
	// ID is a ULID whose timestamp is the creation time. IDs of one world
	// sort in creation order.
	ID        string    `json:"id"`
	WorldID   uuid.UUID `json:"worldID"`
	CreatedAt time.Time `json:"createdAt"`
	// Key locates the archive inside the backup storage.
	Key  string `json:"key"`
	Size int64  `json:"size"`
}
