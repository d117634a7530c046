package authmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateRoundTrip(t *testing.T) {
	m := New(Config{SecretKey: "s3cret"})
	token, err := m.IssueToken("u1")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "hubd", claims.Issuer)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := New(Config{SecretKey: "s3cret"})
	token, err := issuer.IssueToken("u1")
	require.NoError(t, err)

	verifier := New(Config{SecretKey: "different"})
	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m := New(Config{SecretKey: "s3cret", TokenDuration: -time.Hour})
	token, err := m.IssueToken("u1")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsAlgorithmSubstitution(t *testing.T) {
	m := New(Config{SecretKey: "s3cret"})

	claims := &Claims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestRequireBearerRejectsMissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(Config{SecretKey: "s3cret"})
	router := gin.New()
	router.GET("/protected", m.RequireBearer(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestRequireBearerAcceptsValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(Config{SecretKey: "s3cret"})
	router := gin.New()
	var seenUserID string
	router.GET("/protected", m.RequireBearer(), func(c *gin.Context) {
		seenUserID, _ = c.Get("userID").(string)
		c.Status(http.StatusOK)
	})

	token, err := m.IssueToken("u1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", seenUserID)
}

func TestRequireBearerRejectsInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(Config{SecretKey: "s3cret"})
	router := gin.New()
	router.GET("/protected", m.RequireBearer(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
