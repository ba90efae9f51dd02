package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRole represents the role of a user. The four built-in roles below are
// known to the permission system; tenants may also assign arbitrary custom
// role identifiers, which resolve to the default capability set.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleSales   UserRole = "sales"
	RoleViewer  UserRole = "viewer"
)

// ArchivedEmailPrefix marks the rewritten email of a deactivated account.
// Rewriting frees the original address for reuse while the row stays behind
// for referential integrity with quotes and projects.
const ArchivedEmailPrefix = "archived"

// User represents a user account in the system
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username string             `bson:"username" json:"username"`
	Email    string             `bson:"email" json:"email"`
	FullName string             `bson:"full_name" json:"full_name"`
	Phone    string             `bson:"phone,omitempty" json:"phone,omitempty"`

	// Tenant association
	CompanyID string `bson:"company_id" json:"company_id"`

	// Role and permissions
	Role UserRole `bson:"role" json:"role"`

	// Authentication
	PasswordHash string `bson:"password_hash" json:"-"`

	// Status
	IsActive  bool       `bson:"is_active" json:"is_active"`
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`

	// Session guard fields. LastSeenAt is stamped by the heartbeat endpoint
	// and at login; LastForceLogoutAt is the forced-logout marker pushed to
	// connected monitors.
	LastSeenAt        time.Time `bson:"last_seen_at,omitempty" json:"last_seen_at,omitempty"`
	LastForceLogoutAt time.Time `bson:"last_force_logout_at,omitempty" json:"last_force_logout_at,omitempty"`

	// Metadata
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	CreatedBy string    `bson:"created_by,omitempty" json:"created_by,omitempty"`
}

// ArchivedEmail returns the sentinel email a deactivated account is rewritten to.
func (u *User) ArchivedEmail(at time.Time) string {
	return fmt.Sprintf("%s.%d.%s", ArchivedEmailPrefix, at.Unix(), u.Email)
}

// Module identifies a CRM area that capabilities are granted against.
type Module string

const (
	ModuleClients  Module = "clients"
	ModuleProjects Module = "projects"
	ModuleQuotes   Module = "quotes"
	ModuleUsers    Module = "users"
	ModuleAudit    Module = "audit"
	ModuleSettings Module = "settings"
)

// Capability is the fixed three-flag permission record for one module.
type Capability struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
}

var (
	capFull      = Capability{Read: true, Write: true, Delete: true}
	capReadWrite = Capability{Read: true, Write: true}
	capReadOnly  = Capability{Read: true}
)

// DefaultCapability is what unknown modules and custom roles fall back to,
// rather than silently granting nothing or everything.
var DefaultCapability = capReadOnly

var roleCapabilities = map[UserRole]map[Module]Capability{
	RoleAdmin: {
		ModuleClients:  capFull,
		ModuleProjects: capFull,
		ModuleQuotes:   capFull,
		ModuleUsers:    capFull,
		ModuleAudit:    capReadOnly,
		ModuleSettings: capFull,
	},
	RoleManager: {
		ModuleClients:  capFull,
		ModuleProjects: capFull,
		ModuleQuotes:   capFull,
		ModuleUsers:    capReadOnly,
		ModuleAudit:    capReadOnly,
		ModuleSettings: capReadOnly,
	},
	RoleSales: {
		ModuleClients:  capReadWrite,
		ModuleProjects: capReadWrite,
		ModuleQuotes:   capReadWrite,
		ModuleUsers:    capReadOnly,
	},
	RoleViewer: {
		ModuleClients:  capReadOnly,
		ModuleProjects: capReadOnly,
		ModuleQuotes:   capReadOnly,
	},
}

// KnownModule reports whether a raw module name belongs to the closed set.
func KnownModule(name string) bool {
	switch Module(name) {
	case ModuleClients, ModuleProjects, ModuleQuotes, ModuleUsers, ModuleAudit, ModuleSettings:
		return true
	}
	return false
}

// RoleCapability resolves the capability a role holds on a module. Custom
// roles get DefaultCapability everywhere; built-in roles get no access to
// modules their map does not mention.
func RoleCapability(role UserRole, module Module) Capability {
	if caps, ok := roleCapabilities[role]; ok {
		return caps[module]
	}
	return DefaultCapability
}

// CapabilityFor resolves a capability from a raw module name. Legacy module
// keys outside the closed set resolve to DefaultCapability instead of the
// old silent no-access behavior.
func CapabilityFor(role UserRole, rawModule string) Capability {
	if !KnownModule(rawModule) {
		return DefaultCapability
	}
	return RoleCapability(role, Module(rawModule))
}

// CanRead reports whether the user may read the given module.
func (u *User) CanRead(module Module) bool {
	return RoleCapability(u.Role, module).Read
}

// CanWrite reports whether the user may create or update in the given module.
func (u *User) CanWrite(module Module) bool {
	return RoleCapability(u.Role, module).Write
}

// CanDelete reports whether the user may delete in the given module.
func (u *User) CanDelete(module Module) bool {
	return RoleCapability(u.Role, module).Delete
}

// IsBuiltinRole checks if a role is one of the fixed built-in roles
func IsBuiltinRole(role string) bool {
	switch UserRole(role) {
	case RoleAdmin, RoleManager, RoleSales, RoleViewer:
		return true
	}
	return false
}

// IsValidRole checks if a role identifier is usable. Custom role identifiers
// are accepted as long as they are non-empty.
func IsValidRole(role string) bool {
	return role != ""
}
