// Package storage provides shop-floor entity storage backed by NATS KV.
package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EntityType represents the type of entity stored in KV.
type EntityType string

const (
	EntityTypeJob       EntityType = "job"
	EntityTypeCutlist   EntityType = "cutlist"
	EntityTypeMaterial  EntityType = "material"
	EntityTypeStock     EntityType = "stock"
	EntityTypeHardware  EntityType = "hardware"
	EntityTypeRod       EntityType = "rod"
	EntityTypeChecklist EntityType = "check"
)

// Bucket names for each entity type.
const (
	BucketJobs       = "SHOPFLOOR_JOBS"
	BucketCutlists   = "SHOPFLOOR_CUTLISTS"
	BucketMaterials  = "SHOPFLOOR_MATERIALS"
	BucketStock      = "SHOPFLOOR_STOCK"
	BucketHardware   = "SHOPFLOOR_HARDWARE"
	BucketRods       = "SHOPFLOOR_RODS"
	BucketChecklists = "SHOPFLOOR_CHECKLISTS"
)

// EntityID represents a typed entity identifier.
type EntityID struct {
	Type EntityType
	ID   string
}

// String returns the string representation of the entity ID.
func (e EntityID) String() string {
	return fmt.Sprintf("%s:%s", e.Type, e.ID)
}

// ParseEntityID parses an entity ID string into its components.
func ParseEntityID(s string) (EntityID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return EntityID{}, fmt.Errorf("invalid entity ID format: %s", s)
	}
	entityType := EntityType(parts[0])
	switch entityType {
	case EntityTypeJob, EntityTypeCutlist, EntityTypeMaterial,
		EntityTypeStock, EntityTypeHardware, EntityTypeRod, EntityTypeChecklist:
		return EntityID{Type: entityType, ID: parts[1]}, nil
	default:
		return EntityID{}, fmt.Errorf("unknown entity type: %s", parts[0])
	}
}

// parseTypedID parses s and verifies it names an entity of the wanted type.
// Mistyped or malformed IDs map to ErrNotFound so HTTP callers surface 404
// rather than 400 for a well-formed ID of the wrong kind.
func parseTypedID(s string, want EntityType) (EntityID, error) {
	id, err := ParseEntityID(s)
	if err != nil || id.Type != want {
		return EntityID{}, ErrNotFound
	}
	return id, nil
}

// NewEntityID generates a new unique entity ID for the given type.
func NewEntityID(t EntityType) EntityID {
	return EntityID{
		Type: t,
		ID:   uuid.New().String(),
	}
}
