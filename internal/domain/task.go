package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Task struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string     `gorm:"not null;column:title" json:"title"`
	Description string     `gorm:"type:text;column:description" json:"description,omitempty"`
	Status      TaskStatus `gorm:"not null;default:'todo';column:status" json:"status"`
	AssignedTo  *uuid.UUID `gorm:"type:uuid;index;column:assigned_to" json:"assigned_to,omitempty"`
	Deadline    *time.Time `gorm:"column:deadline" json:"deadline,omitempty"`

	Assignee *User `gorm:"foreignKey:AssignedTo" json:"assignee,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Task) TableName() string { return "task" }

func (t *Task) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
