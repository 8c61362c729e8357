package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the payload of access tokens minted by the identity provider.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller, resolved once at the boundary and
// passed explicitly into every service call.
type Principal struct {
	Role UserRole
	ID   string
}

// StudentPrincipal builds a student principal.
func StudentPrincipal(id string) Principal { return Principal{Role: RoleStudent, ID: id} }

// LecturerPrincipal builds a lecturer principal.
func LecturerPrincipal(id string) Principal { return Principal{Role: RoleLecturer, ID: id} }

// AdminPrincipal builds an admin principal.
func AdminPrincipal(id string) Principal { return Principal{Role: RoleAdmin, ID: id} }

// PrincipalFromClaims maps verified claims to a principal. ok is false for
// unknown roles or a missing subject.
func PrincipalFromClaims(c *JWTClaims) (Principal, bool) {
	if c == nil {
		return Principal{}, false
	}
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	if id == "" || !c.Role.Valid() {
		return Principal{}, false
	}
	return Principal{Role: c.Role, ID: id}, true
}

func (p Principal) IsStudent() bool  { return p.Role == RoleStudent && p.ID != "" }
func (p Principal) IsLecturer() bool { return p.Role == RoleLecturer && p.ID != "" }
func (p Principal) IsAdmin() bool    { return p.Role == RoleAdmin && p.ID != "" }
