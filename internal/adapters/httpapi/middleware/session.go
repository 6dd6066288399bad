package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"credpost/internal/core/session"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

const (
	CookieName = "credpost_session"

	// ContextSessionKey holds the verified *session.Session on the gin context.
	ContextSessionKey = "session"
)

var ErrSessionMismatch = errors.New("token does not belong to the live session")

// SessionTokens signs tokens that bind a browser to one wallet session. A
// token stops working as soon as that session is reset.
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
}

func NewSessionTokens(secret []byte, ttl time.Duration) *SessionTokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionTokens{secret: secret, ttl: ttl}
}

func (t *SessionTokens) TTL() time.Duration { return t.ttl }

func (t *SessionTokens) Issue(s *session.Session) (string, error) {
	now := time.Now()
	claims := &jwt.StandardClaims{
		Id:        s.ID.String(),
		Subject:   s.Account.Hex(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(t.ttl).Unix(),
		Issuer:    "credpost",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *SessionTokens) Parse(raw string) (*jwt.StandardClaims, error) {
	claims := &jwt.StandardClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Verify checks that raw was issued for the session s.
func (t *SessionTokens) Verify(raw string, s *session.Session) error {
	claims, err := t.Parse(raw)
	if err != nil {
		return err
	}
	if s == nil || claims.Id != s.ID.String() || !strings.EqualFold(claims.Subject, s.Account.Hex()) {
		return ErrSessionMismatch
	}
	return nil
}

// SessionSource exposes the live session, nil when disconnected.
type SessionSource interface {
	Session() *session.Session
}

// TokenFromRequest reads the bearer token, then the session cookie.
func TokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := c.Cookie(CookieName); err == nil {
		return cookie
	}
	return ""
}

// RequireSession rejects requests that do not carry a token for the live
// session.
func RequireSession(tokens *SessionTokens, source SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		current := source.Session()
		raw := TokenFromRequest(c)
		if current == nil || raw == "" || tokens.Verify(raw, current) != nil {
			unauthorized(c)
			return
		}
		c.Set(ContextSessionKey, current)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML {
		q := url.Values{"notice": {"Please connect your wallet first!"}, "level": {"error"}}
		c.Redirect(http.StatusSeeOther, "/?"+q.Encode())
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "wallet session required", "code": "not_connected"})
}
