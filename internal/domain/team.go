package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Team struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string     `gorm:"not null;column:name" json:"name"`
	OwnerID   uuid.UUID  `gorm:"type:uuid;not null;index;column:owner_id" json:"owner_id"`
	ProjectID *uuid.UUID `gorm:"type:uuid;index;column:project_id" json:"project_id,omitempty"`

	Owner   *User    `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Project *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Members []User   `gorm:"foreignKey:TeamID" json:"members,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Team) TableName() string { return "team" }

func (t *Team) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
