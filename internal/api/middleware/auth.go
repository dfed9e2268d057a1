package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/pkg/utils"
)

const (
	// ActorKey is the context key holding the operator id
	ActorKey = "actor_id"
	// ActorHeader names the operator when authentication is disabled
	ActorHeader = "X-Actor-ID"
	// AnonymousActor is used when no operator id is supplied
	AnonymousActor = "anonymous"
)

// AuthMiddleware resolves the acting operator. With authentication enabled it
// requires an HMAC-signed bearer token and reads the actor from the
// configured claim; otherwise the X-Actor-ID header is trusted.
func AuthMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	claim := cfg.ActorClaim
	if claim == "" {
		claim = "sub"
	}

	return func(c *gin.Context) {
		if !cfg.Enabled {
			actor := strings.TrimSpace(c.GetHeader(ActorHeader))
			if actor == "" {
				actor = AnonymousActor
			}
			c.Set(ActorKey, actor)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.SendError(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			utils.SendError(c, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		token, err := jwt.Parse(tokenParts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			utils.SendError(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			utils.SendError(c, http.StatusUnauthorized, "Invalid token claims")
			return
		}
		actor, _ := claims[claim].(string)
		if actor == "" {
			utils.SendError(c, http.StatusUnauthorized, "Token has no "+claim+" claim")
			return
		}

		c.Set(ActorKey, actor)
		c.Next()
	}
}

// Actor returns the operator id resolved by AuthMiddleware
func Actor(c *gin.Context) string {
	if actor := c.GetString(ActorKey); actor != "" {
		return actor
	}
	return AnonymousActor
}
