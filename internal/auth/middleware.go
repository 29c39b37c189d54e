package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mindforu/internal/models"
	"mindforu/internal/store"
)

// SessionCookie carries the token for browser clients
const SessionCookie = "session"

const claimsKey = "auth.claims"

// UserLookup loads the account behind a token
type UserLookup interface {
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// RequireAuth rejects requests without a valid token and stores the claims
// in the gin context. With a non-nil users lookup the role and email are
// reloaded from the account, so promotions and revocations apply to tokens
// already issued.
func RequireAuth(m *Manager, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				token = cookie
			}
		}
		if token == "" {
			abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := m.ParseToken(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, err.Error())
			return
		}
		if users != nil && !refresh(c, claims, users) {
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func refresh(c *gin.Context, claims *Claims, users UserLookup) bool {
	id, err := claims.ObjectID()
	if err != nil {
		abort(c, http.StatusUnauthorized, ErrInvalidToken.Error())
		return false
	}
	user, err := users.UserByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		abort(c, http.StatusUnauthorized, "Account no longer exists")
		return false
	}
	if err != nil {
		_ = c.Error(err)
		abort(c, http.StatusInternalServerError, "internal server error")
		return false
	}
	claims.Role = user.Role
	claims.Email = user.Email
	return true
}

// RequireAdmin must run after RequireAuth
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := FromContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !claims.IsAdmin() {
			abort(c, http.StatusForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}

// FromContext returns the claims stored by RequireAuth
func FromContext(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
