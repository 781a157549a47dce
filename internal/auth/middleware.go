package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/issue-sync/internal/domain"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated operator.
type Principal struct {
	Subject      string
	Role         domain.OperatorRole
	DepartmentID string
}

// CanAct reports whether the principal may change the issue. Department
// operators are limited to issues assigned to their department.
func (p *Principal) CanAct(issue domain.Issue) bool {
	if p == nil {
		return false
	}
	if p.Role == domain.OperatorRoleAdmin {
		return true
	}
	return p.DepartmentID != "" && issue.HasDepartment(p.DepartmentID)
}

// AuthMiddleware validates bearer tokens.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware. With a nil manager every request
// runs as an anonymous admin.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	if m.tokens == nil {
		c.Locals(principalKey, &Principal{Subject: "anonymous", Role: domain.OperatorRoleAdmin})
		return c.Next()
	}

	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{
		Subject:      claims.Subject,
		Role:         claims.Role,
		DepartmentID: claims.DepartmentID,
	})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated operator.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
