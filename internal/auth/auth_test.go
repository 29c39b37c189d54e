package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"mindforu/internal/models"
	"mindforu/internal/store"
)

func newTestManager() *Manager {
	m := NewManager("test-secret", time.Hour)
	m.cost = bcrypt.MinCost
	return m
}

func testUser(role string) *models.User {
	return &models.User{ID: primitive.NewObjectID(), Email: "ada@example.com", Role: role}
}

func TestPasswords(t *testing.T) {
	m := newTestManager()

	_, err := m.HashPassword("short")
	assert.Error(t, err)

	hash, err := m.HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, m.CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, m.CheckPassword(hash, "wrong horse!"), ErrInvalidCredentials)
	assert.ErrorIs(t, m.CheckPassword("", "anything"), ErrInvalidCredentials)
}

func TestIssueAndParseToken(t *testing.T) {
	m := newTestManager()
	user := testUser(models.RoleAdmin)

	token, expires, err := m.IssueToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.True(t, claims.IsAdmin())
	id, err := claims.ObjectID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
}

func TestParseToken_Rejects(t *testing.T) {
	m := newTestManager()
	user := testUser(models.RoleUser)

	t.Run("expired", func(t *testing.T) {
		token, _, err := m.IssueToken(user)
		require.NoError(t, err)
		later := newTestManager()
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err = later.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewManager("other-secret", time.Hour).IssueToken(user)
		require.NoError(t, err)
		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := Claims{UserID: user.ID.Hex(), RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ParseToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager()

	r := gin.New()
	r.GET("/me", RequireAuth(m, nil), func(c *gin.Context) {
		claims, _ := FromContext(c)
		c.String(http.StatusOK, claims.Email)
	})
	r.GET("/admin", RequireAuth(m, nil), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	userToken, _, err := m.IssueToken(testUser(models.RoleUser))
	require.NoError(t, err)
	adminToken, _, err := m.IssueToken(testUser(models.RoleAdmin))
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		cookie string
		want   int
	}{
		{"no token", "/me", "", "", http.StatusUnauthorized},
		{"bearer header", "/me", "Bearer " + userToken, "", http.StatusOK},
		{"lowercase scheme", "/me", "bearer " + userToken, "", http.StatusOK},
		{"session cookie", "/me", "", userToken, http.StatusOK},
		{"bad token", "/me", "Bearer nope", "", http.StatusUnauthorized},
		{"user on admin route", "/admin", "Bearer " + userToken, "", http.StatusForbidden},
		{"admin on admin route", "/admin", "Bearer " + adminToken, "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

type userMap map[primitive.ObjectID]*models.User

func (u userMap) UserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func TestMiddleware_RoleFollowsAccount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager()

	admin := testUser(models.RoleAdmin)
	user := testUser(models.RoleUser)
	users := userMap{admin.ID: admin, user.ID: user}

	r := gin.New()
	r.GET("/admin", RequireAuth(m, users), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	get := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	adminToken, _, err := m.IssueToken(admin)
	require.NoError(t, err)
	userToken, _, err := m.IssueToken(user)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, get(adminToken))
	assert.Equal(t, http.StatusForbidden, get(userToken))

	admin.Role = models.RoleUser
	user.Role = models.RoleAdmin
	assert.Equal(t, http.StatusForbidden, get(adminToken), "revoked admin keeps an old token")
	assert.Equal(t, http.StatusNoContent, get(userToken), "promotion applies without a new login")

	delete(users, user.ID)
	assert.Equal(t, http.StatusUnauthorized, get(userToken))
}
