package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hashed, err := HashPassword("TestPassword123!")
	require.NoError(t, err)

	assert.NotEqual(t, "TestPassword123!", hashed)
	assert.True(t, VerifyPassword("TestPassword123!", hashed))
	assert.False(t, VerifyPassword("wrong_password", hashed))
}

func TestValidatePasswordStrength(t *testing.T) {
	assert.Empty(t, ValidatePasswordStrength("Str0ngPass"))
	assert.Len(t, ValidatePasswordStrength("weak"), 3) // short, no upper, no digit
	assert.Contains(t, ValidatePasswordStrength("alllowercase1"), "Password must contain at least one uppercase letter")

	long := "Aa1" + strings.Repeat("x", 70)
	assert.Equal(t, []string{"Password must be at most 72 bytes"}, ValidatePasswordStrength(long))
	assert.Empty(t, ValidatePasswordStrength(long[:MaxPasswordBytes]))
	_, err := HashPassword(long[:MaxPasswordBytes])
	assert.NoError(t, err)
}

func TestNormalizeUsername(t *testing.T) {
	u, err := NormalizeUsername("  Retail_Fan-1 ")
	require.NoError(t, err)
	assert.Equal(t, "retail_fan-1", u)

	_, err = NormalizeUsername("ab")
	assert.ErrorIs(t, err, ErrInvalidUsername)
	_, err = NormalizeUsername("bad name!")
	assert.ErrorIs(t, err, ErrInvalidUsername)
}

func TestTokenManager(t *testing.T) {
	tm := NewTokenManager([]byte("test-secret"), 30*time.Minute, 7*24*time.Hour)

	t.Run("Access token round trip", func(t *testing.T) {
		token, err := tm.IssueAccess("test@example.com", "user")
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := tm.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "test@example.com", claims.Subject)
		assert.Equal(t, "user", claims.Role)
		assert.Equal(t, TokenTypeAccess, claims.Type)
	})

	t.Run("Type is enforced", func(t *testing.T) {
		pair, err := tm.IssuePair("test@example.com", "admin")
		require.NoError(t, err)
		assert.Equal(t, TokenTypeBearer, pair.TokenType)

		_, err = tm.VerifyType(pair.RefreshToken, TokenTypeAccess)
		assert.ErrorIs(t, err, ErrWrongTokenType)
		claims, err := tm.VerifyType(pair.RefreshToken, TokenTypeRefresh)
		require.NoError(t, err)
		assert.Equal(t, "admin", claims.Role)
	})

	t.Run("Expired token", func(t *testing.T) {
		short := NewTokenManager([]byte("test-secret"), time.Second, time.Second)
		short.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, err := short.IssueAccess("test@example.com", "user")
		require.NoError(t, err)

		_, err = tm.Verify(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("Foreign secret", func(t *testing.T) {
		other := NewTokenManager([]byte("other-secret"), time.Minute, time.Minute)
		token, err := other.IssueAccess("test@example.com", "user")
		require.NoError(t, err)

		_, err = tm.Verify(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("Unsigned token rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": "test@example.com", "type": "access", "exp": time.Now().Add(time.Hour).Unix(),
		})
		raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = tm.Verify(raw)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := tm.Verify("invalid.token.here")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestRequireAuthAndRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tm := NewTokenManager([]byte("test-secret"), time.Minute, time.Hour)

	router := gin.New()
	router.GET("/me", RequireAuth(tm), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.JSON(http.StatusOK, gin.H{"sub": claims.Subject})
	})
	router.GET("/admin", RequireAuth(tm), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(path, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	userToken, _ := tm.IssueAccess("u@example.com", "user")
	adminToken, _ := tm.IssueAccess("a@example.com", "admin")
	refreshToken, _ := tm.IssueRefresh("u@example.com", "user")

	w := do("/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, do("/me", "Bearer invalid.token.here").Code)
	assert.Equal(t, http.StatusUnauthorized, do("/me", "Bearer "+refreshToken).Code)
	assert.Equal(t, http.StatusOK, do("/me", "Bearer "+userToken).Code)

	assert.Equal(t, http.StatusForbidden, do("/admin", "Bearer "+userToken).Code)
	assert.Equal(t, http.StatusOK, do("/admin", "Bearer "+adminToken).Code)
}
