package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StaleIndexEntry records a vector-index write that failed after its
// relational write committed. Entries stay until a sweep reindexes them.
type StaleIndexEntry struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EntityKind string         `gorm:"not null;index:idx_stale_entity,priority:1;column:entity_kind" json:"entity_kind"`
	EntityID   string         `gorm:"not null;index:idx_stale_entity,priority:2;column:entity_id" json:"entity_id"`
	Operation  string         `gorm:"not null;column:operation" json:"operation"`
	Reason     string         `gorm:"type:text;column:reason" json:"reason"`
	Details    datatypes.JSON `gorm:"column:details" json:"details,omitempty"`
	Attempts   int            `gorm:"not null;default:1;column:attempts" json:"attempts"`
	ResolvedAt *time.Time     `gorm:"index;column:resolved_at" json:"resolved_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (StaleIndexEntry) TableName() string { return "stale_index_entry" }

func (e *StaleIndexEntry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
