package principal

import (
	"strings"
	"time"
)

// Role is the enumerated privilege tier of a principal.
type Role string

const (
	// RoleStandard is the default tier assigned on first handshake.
	RoleStandard Role = "standard"
	// RoleAdmin is an elevated tier.
	RoleAdmin Role = "admin"
	// RoleOwner is an elevated tier.
	RoleOwner Role = "owner"
)

// Valid reports whether r is a non-empty, whitespace-free role name.
func (r Role) Valid() bool {
	s := string(r)
	return s != "" && strings.TrimSpace(s) == s && !strings.ContainsAny(s, " \t\r\n")
}

// Principal is the resolved identity view built from verified token claims or
// trusted headers. It is never a full profile.
type Principal struct {
	ID       string  `json:"id"`
	Role     Role    `json:"role"`
	TenantID *string `json:"tenantId"`
	Stamp    string  `json:"-"`
}

// Tenant returns the tenant id or "" when the principal has none.
func (p Principal) Tenant() string {
	if p.TenantID == nil {
		return ""
	}
	return *p.TenantID
}

// ExternalIdentity links a principal to the identity asserted by the embedded
// client handshake.
type ExternalIdentity struct {
	Provider  string
	Subject   string
	Username  string
	FirstName string
	LastName  string
	Language  string
}

// Record is the source-of-truth row for a principal.
type Record struct {
	ID            string
	Role          Role
	TenantID      *string
	SecurityStamp string
	Provider      string
	ExternalID    string
	Username      string
	DisplayName   string
	Language      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// Deleted reports whether the record is soft-deleted.
func (r Record) Deleted() bool {
	return r.DeletedAt != nil
}

// View converts a record into the claims-shaped principal view.
func (r Record) View() Principal {
	return Principal{
		ID:       r.ID,
		Role:     r.Role,
		TenantID: CloneTenant(r.TenantID),
		Stamp:    r.SecurityStamp,
	}
}

// StampRecord is the thin row read on every verification.
type StampRecord struct {
	Stamp   string
	Deleted bool
}

// NewRecord carries the attributes of a principal created on first handshake.
type NewRecord struct {
	ID            string
	Role          Role
	TenantID      *string
	SecurityStamp string
	Identity      ExternalIdentity
}

// CloneTenant copies a nullable tenant id.
func CloneTenant(tenantID *string) *string {
	if tenantID == nil {
		return nil
	}
	v := *tenantID
	return &v
}

// TenantPtr returns nil for an empty tenant id.
func TenantPtr(tenantID string) *string {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil
	}
	return &tenantID
}
