// Package middleware provides authentication, logging, metrics, tracing and
// rate limiting middleware for the HTTP API.
package middleware

import (
	"strings"
	"time"

	"socialgraph/internal/config"
	"socialgraph/internal/models"
	"socialgraph/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Token issuer and audience accepted by AuthRequired.
const (
	TokenIssuer   = "socialgraph-api"
	TokenAudience = "socialgraph-client"
)

// UserIDLocal is the fiber locals key holding the authenticated uid.
const UserIDLocal = "userID"

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// IssueToken signs an access token for uid.
func IssueToken(secret, uid string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   uid,
		Issuer:    TokenIssuer,
		Audience:  jwt.ClaimStrings{TokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates tokenString and returns its subject.
func ParseToken(secret, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(secret), nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return "", models.NewUnauthenticatedError()
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", models.NewUnauthenticatedError()
	}
	if err := models.ValidateUID(claims.Subject); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return unauthenticated(c, "Authorization header required")
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return unauthenticated(c, "Invalid authorization header format")
	}

	return authenticate(c, parts[1])
}

// WebSocketAuthRequired validates a token from the query string, falling back
// to the Authorization header. Browsers cannot set headers on upgrade requests.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return AuthRequired(c)
	}
	return authenticate(c, token)
}

func authenticate(c *fiber.Ctx, tokenString string) error {
	uid, err := ParseToken(cfg.JWTSecret, tokenString)
	if err != nil {
		return unauthenticated(c, "Invalid or expired token")
	}

	// Store user ID in context
	c.Locals(UserIDLocal, uid)
	// Sync to UserContext for logging and downstream services
	c.SetUserContext(observability.WithUserID(c.UserContext(), uid))

	return c.Next()
}

// UserID returns the authenticated uid, or "" outside AuthRequired.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(UserIDLocal).(string)
	return uid
}

func unauthenticated(c *fiber.Ctx, message string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, &models.AppError{
		Code:    models.CodeUnauthenticated,
		Message: message,
	})
}
