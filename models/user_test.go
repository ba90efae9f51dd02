package models

import (
	"fmt"
	"testing"
	"time"
)

func TestRoleCapability(t *testing.T) {
	cases := []struct {
		role   UserRole
		module Module
		want   Capability
	}{
		{RoleAdmin, ModuleUsers, Capability{Read: true, Write: true, Delete: true}},
		{RoleAdmin, ModuleAudit, Capability{Read: true}},
		{RoleManager, ModuleClients, Capability{Read: true, Write: true, Delete: true}},
		{RoleManager, ModuleUsers, Capability{Read: true}},
		{RoleSales, ModuleQuotes, Capability{Read: true, Write: true}},
		{RoleSales, ModuleAudit, Capability{}},
		{RoleViewer, ModuleClients, Capability{Read: true}},
		{RoleViewer, ModuleSettings, Capability{}},
		// Custom roles resolve to the default capability everywhere.
		{UserRole("contractor"), ModuleClients, DefaultCapability},
		{UserRole("contractor"), ModuleSettings, DefaultCapability},
	}

	for _, tc := range cases {
		if got := RoleCapability(tc.role, tc.module); got != tc.want {
			t.Errorf("RoleCapability(%s, %s) = %+v, want %+v", tc.role, tc.module, got, tc.want)
		}
	}
}

func TestCapabilityForUnknownModule(t *testing.T) {
	// Legacy module keys outside the closed set resolve to the default
	// instead of silently granting nothing.
	if got := CapabilityFor(RoleAdmin, "legacy_reports"); got != DefaultCapability {
		t.Errorf("CapabilityFor(admin, legacy_reports) = %+v, want default", got)
	}
	if got := CapabilityFor(RoleViewer, "clients"); got != (Capability{Read: true}) {
		t.Errorf("CapabilityFor(viewer, clients) = %+v, want read-only", got)
	}
}

func TestKnownModule(t *testing.T) {
	for _, name := range []string{"clients", "projects", "quotes", "users", "audit", "settings"} {
		if !KnownModule(name) {
			t.Errorf("KnownModule(%q) = false, want true", name)
		}
	}
	if KnownModule("legacy_reports") {
		t.Error("KnownModule(legacy_reports) = true, want false")
	}
}

func TestArchivedEmail(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	user := &User{Email: "ana@example.com"}

	want := fmt.Sprintf("archived.%d.ana@example.com", at.Unix())
	if got := user.ArchivedEmail(at); got != want {
		t.Errorf("ArchivedEmail = %q, want %q", got, want)
	}
}

func TestRoleValidity(t *testing.T) {
	for _, role := range []string{"admin", "manager", "sales", "viewer"} {
		if !IsBuiltinRole(role) {
			t.Errorf("IsBuiltinRole(%q) = false, want true", role)
		}
	}
	if IsBuiltinRole("contractor") {
		t.Error("IsBuiltinRole(contractor) = true, want false")
	}

	if !IsValidRole("contractor") {
		t.Error("custom role identifiers should be accepted")
	}
	if IsValidRole("") {
		t.Error("empty role should be rejected")
	}
}
