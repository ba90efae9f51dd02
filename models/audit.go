package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuditAction identifies what happened to an entity
type AuditAction string

const (
	AuditCreate      AuditAction = "create"
	AuditUpdate      AuditAction = "update"
	AuditDelete      AuditAction = "delete"
	AuditLogin       AuditAction = "login"
	AuditLogout      AuditAction = "logout"
	AuditForceLogout AuditAction = "force_logout"
	AuditDeactivate  AuditAction = "deactivate"
)

// AuditEntry is one append-only audit trail record
type AuditEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CompanyID string             `bson:"company_id" json:"company_id"`

	ActorID    string      `bson:"actor_id" json:"actor_id"`
	ActorEmail string      `bson:"actor_email,omitempty" json:"actor_email,omitempty"`
	Action     AuditAction `bson:"action" json:"action"`
	Entity     string      `bson:"entity" json:"entity"`
	EntityID   string      `bson:"entity_id,omitempty" json:"entity_id,omitempty"`
	Detail     string      `bson:"detail,omitempty" json:"detail,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
