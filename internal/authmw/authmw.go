// Package authmw implements the JWT bearer guard (component Q). cmd/hubd
// applies it to the blob HTTP surface and to POST /invoke. The WebSocket
// endpoint (/ws) does not pass through this guard and checks no token:
// it takes the user ID from its query string.
//
// Grounded on the teacher's internal/auth/jwt.go: HS256 signing,
// explicit signing-method verification to block algorithm-substitution
// attacks, and the same RegisteredClaims-embedding Claims shape. The
// refresh-token window and Redis-backed session store are dropped -
// this system authenticates service-to-service blob access, not an
// interactive login session.
package authmw

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the caller of a blob HTTP request.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Config controls token issuance and verification.
type Config struct {
	SecretKey     string
	Issuer        string
	TokenDuration time.Duration
}

// DefaultConfig returns reasonable defaults; SecretKey MUST still be set
// from configuration before use.
func DefaultConfig() Config {
	return Config{Issuer: "hubd", TokenDuration: 24 * time.Hour}
}

// Manager issues and verifies bearer tokens for the blob HTTP surface.
type Manager struct {
	cfg Config
}

// New constructs a Manager.
func New(cfg Config) *Manager {
	if cfg.Issuer == "" {
		cfg.Issuer = "hubd"
	}
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = 24 * time.Hour
	}
	return &Manager{cfg: cfg}
}

// IssueToken signs a token identifying userID, for out-of-band issuance
// (e.g. a CLI login helper calling into this package directly).
func (m *Manager) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TokenDuration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.cfg.SecretKey))
}

// ValidateToken verifies signature, algorithm, and expiration, and
// returns the embedded claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.cfg.SecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("authmw: parsing token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("authmw: invalid token")
	}
	return claims, nil
}

// RequireBearer is gin middleware guarding the blob and invoke HTTP
// routes: it rejects requests without a valid "Authorization: Bearer
// <token>" header with 401 and stores the resolved userID in the gin
// context.
func (m *Manager) RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")
		claims, err := m.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set("userID", claims.UserID)
		c.Next()
	}
}
