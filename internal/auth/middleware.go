package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller. Identities live on the chat
// platform, so the token is the only source of truth.
type Principal struct {
	ID          int64
	SubjectType domain.SubjectType
	Role        *domain.StaffRole
}

// IsStaff reports whether the caller holds the staff capability.
func (p *Principal) IsStaff() bool {
	return p != nil && p.SubjectType == domain.SubjectTypeStaff
}

// HasRole reports whether a staff caller holds role.
func (p *Principal) HasRole(role domain.StaffRole) bool {
	return p.IsStaff() && p.Role != nil && *p.Role == role
}

// Actor converts the principal for the ticket service.
func (p *Principal) Actor() domain.Actor {
	return domain.Actor{ID: p.ID, Staff: p.IsStaff()}
}

// AuthMiddleware validates bearer tokens and stores the principal.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	id, err := claims.SubjectID()
	if err != nil {
		return apperrors.NewUnauthorized("invalid token subject")
	}

	principal := &Principal{ID: id, SubjectType: claims.SubjectType, Role: claims.Role}
	switch claims.SubjectType {
	case domain.SubjectTypeMember:
		principal.Role = nil
	case domain.SubjectTypeStaff:
	default:
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
