package jwt

import (
	"time"

	"fleettrack/internal/domain/user"
	"fleettrack/internal/ports"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines our canonical JWT claims payload. The directory system
// issues these tokens; the core only consumes the role and company scope
// they carry.
type Claims struct {
	Role      user.Role `json:"role"`                 // caller role for RBAC (OPERATOR/MANAGER/ADMIN)
	CompanyID string    `json:"company_id,omitempty"` // tenant partition; empty only for ADMIN
	jwtlib.RegisteredClaims
}

// ensure Claims implements jwtlib.Claims interface
var _ jwtlib.Claims = (*Claims)(nil)

// NewUserClaims constructs caller claims.
func NewUserClaims(userID, companyID string, role user.Role, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Role:      role,
		CompanyID: companyID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// Scope converts the claims into the tenant scope repositories consume.
func (c *Claims) Scope() ports.Scope {
	return ports.Scope{CompanyID: c.CompanyID, Role: c.Role.String()}
}
