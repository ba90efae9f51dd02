package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProjectStatus represents the lifecycle state of a project
type ProjectStatus string

const (
	ProjectPlanned   ProjectStatus = "planned"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
)

// Project represents a client project
type Project struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CompanyID string             `bson:"company_id" json:"company_id"`
	ClientID  string             `bson:"client_id" json:"client_id"`

	Name        string        `bson:"name" json:"name"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
	Status      ProjectStatus `bson:"status" json:"status"`
	StartDate   *time.Time    `bson:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate     *time.Time    `bson:"end_date,omitempty" json:"end_date,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	CreatedBy string    `bson:"created_by,omitempty" json:"created_by,omitempty"`
}

// IsValidProjectStatus checks if a status value is valid
func IsValidProjectStatus(status string) bool {
	switch ProjectStatus(status) {
	case ProjectPlanned, ProjectActive, ProjectOnHold, ProjectCompleted:
		return true
	}
	return false
}
