package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey   contextKey = "auth.user_id"
	UserRoleKey contextKey = "auth.user_role"
	UserNameKey contextKey = "auth.user_name"
)

// Roles recognised by the platform.
const (
	RoleAdmin      = "admin"
	RoleDoctor     = "doctor"
	RolePatient    = "patient"
	RolePharmacist = "pharmacist"
	RoleStaff      = "staff"
)

// Claims is the JWT payload issued and verified by this service.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// GenerateToken signs a token for the given user with HS256.
func GenerateToken(secret string, userID uuid.UUID, role, name string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
		Role: role,
		Name: name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies the signature and expiry of a token and returns its
// claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// UserID extracts the authenticated user's ID from the context.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return id, ok
}

// UserRole extracts the authenticated user's role from the context.
func UserRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(UserRoleKey).(string)
	return role, ok
}

// WithUser returns a context carrying the given identity. Used by the auth
// middleware and by tests.
func WithUser(ctx context.Context, id uuid.UUID, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id)
	ctx = context.WithValue(ctx, UserRoleKey, role)
	return ctx
}
