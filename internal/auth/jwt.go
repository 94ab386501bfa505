// Package auth issues and validates staff session tokens. Staff sessions
// carry tenant and restaurant scope; anonymous customers never hold one
// and act through capability links instead.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Staff roles.
const (
	RoleManager = "manager"
	RoleHost    = "host"
)

// DefaultSessionTTL bounds how long a staff login stays valid.
const DefaultSessionTTL = 12 * time.Hour

// ErrInvalidSession covers every token validation failure.
var ErrInvalidSession = errors.New("invalid session token")

// Claims is the staff session payload. Subject is the staff user ID.
type Claims struct {
	TenantID     int64  `json:"tenant_id"`
	RestaurantID int64  `json:"restaurant_id"`
	Role         string `json:"role"`
	jwt.RegisteredClaims
}

// Sessions signs and validates staff session tokens with HS256.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates the session service. ttl <= 0 falls back to
// DefaultSessionTTL.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue creates a signed session token for a staff user.
func (s *Sessions) Issue(staffID, tenantID, restaurantID int64, role string) (string, error) {
	if role != RoleManager && role != RoleHost {
		return "", fmt.Errorf("unknown staff role %q", role)
	}
	now := s.now()
	claims := Claims{
		TenantID:     tenantID,
		RestaurantID: restaurantID,
		Role:         role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(staffID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate parses a session token and returns its claims. Any failure,
// including expiry or a foreign signing method, maps to ErrInvalidSession.
func (s *Sessions) Validate(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, ErrInvalidSession
	}
	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// StaffID returns the numeric subject of validated claims.
func (c *Claims) StaffID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse staff id: %w", err)
	}
	return id, nil
}
