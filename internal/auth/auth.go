// Package auth guards the scheduler API with bearer JWTs carrying a role
// claim. Role checks fail closed: no state mutation happens before the check.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Role is the permission level carried in the token.
type Role string

const (
	// RoleOperator may populate recipients and execute batches.
	RoleOperator Role = "operator"
	// RoleAdmin may stop and sweep batches, and holds every operator power.
	RoleAdmin Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleOperator || r == RoleAdmin
}

// Satisfies reports whether a caller holding this role may act as required.
// Admin is a strict superset of operator.
func (r Role) Satisfies(required Role) bool {
	if r == required {
		return true
	}
	return r == RoleAdmin && required == RoleOperator
}

// Claims is the verified caller identity attached to the request context.
type Claims struct {
	Subject string
	Role    Role
}

const claimsLocal = "authClaims"

// Verifier parses and issues HS256 tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// IssueToken mints a token for ops tooling and tests.
func (v *Verifier) IssueToken(subject string, role Role, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("subject is required")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString(v.secret)
}

// Parse verifies the token signature and extracts the subject and role.
func (v *Verifier) Parse(tokenString string) (Claims, error) {
	token, err := jwt.Parse(
		tokenString,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("invalid token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("invalid token claims")
	}

	subject, _ := mapClaims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		return Claims{}, fmt.Errorf("token subject is required")
	}

	roleValue, _ := mapClaims["role"].(string)
	return Claims{
		Subject: subject,
		Role:    Role(roleValue),
	}, nil
}

// Authenticate parses the Authorization bearer token and attaches the caller
// claims. Requests without a valid token are rejected with 401.
func (v *Verifier) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}

		claims, err := v.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}

		c.Locals(claimsLocal, claims)
		return c.Next()
	}
}

// RequireRole rejects callers whose verified role does not satisfy the
// requirement. Must run after Authenticate.
func RequireRole(required Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := CallerFromCtx(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		if !claims.Role.Satisfies(required) {
			return fiber.NewError(fiber.StatusForbidden, "forbidden")
		}
		return c.Next()
	}
}

// CallerFromCtx returns the verified claims attached by Authenticate.
func CallerFromCtx(c *fiber.Ctx) (Claims, bool) {
	claims, ok := c.Locals(claimsLocal).(Claims)
	return claims, ok
}
