package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/config"
	"github.com/phillip/volunteer-events-go/models"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
	actorKey  = "actor"
)

// Claims is the access token issued by the identity service. Older tokens
// carry the user id in user_id instead of sub.
type Claims struct {
	UserID string      `json:"user_id,omitempty"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c Claims) subject() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}

// ParseActor verifies an HS256 access token and returns its caller.
func ParseActor(token, secret string) (models.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Actor{}, errors.New("token expired")
		}
		return models.Actor{}, errors.New("invalid token")
	}

	id, err := primitive.ObjectIDFromHex(claims.subject())
	if err != nil {
		return models.Actor{}, errors.New("invalid token subject")
	}
	if !claims.Role.Valid() {
		return models.Actor{}, errors.New("invalid token role")
	}
	return models.Actor{ID: id, Role: claims.Role}, nil
}

// AuthMiddleware resolves the caller from the Bearer token.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			// EventSource cannot set headers.
			token = c.Query("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token", "code": "UNAUTHORIZED"})
			return
		}

		actor, err := ParseActor(token, cfg.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "UNAUTHORIZED"})
			return
		}

		c.Set(userIDKey, actor.ID.Hex())
		c.Set(roleKey, string(actor.Role))
		c.Set(actorKey, actor)
		c.Next()
	}
}

// GetActor returns the caller resolved by AuthMiddleware.
func GetActor(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "UNAUTHORIZED"})
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role", "code": apperrors.CodeForbidden})
	}
}
