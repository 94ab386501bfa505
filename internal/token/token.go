// Package token mints and verifies capability tokens: unforgeable bearer
// credentials that authorize one action on one booking without server-side
// session state.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Service derives action tokens from a process-wide secret. Tokens carry no
// expiry; the booking's own lifecycle state acts as the revocation signal.
type Service struct {
	secret []byte
}

// NewService creates a token service. The secret must be non-empty.
func NewService(secret string) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is empty")
	}
	return &Service{secret: []byte(secret)}, nil
}

// Generate returns the hex-encoded HMAC-SHA-256 digest binding the booking,
// tenant, restaurant and action. The same tuple always yields the same token,
// so callers can safely re-derive it for idempotent retries.
func (s *Service) Generate(bookingID, tenantID, restaurantID int64, action string) string {
	return hex.EncodeToString(s.digest(bookingID, tenantID, restaurantID, action))
}

// Verify recomputes the expected digest for the tuple and compares it to the
// presented token in fixed time. It returns true only for the exact tuple the
// token was minted for.
func (s *Service) Verify(presented string, bookingID, tenantID, restaurantID int64, action string) bool {
	raw, err := hex.DecodeString(presented)
	if err != nil {
		return false
	}
	return hmac.Equal(raw, s.digest(bookingID, tenantID, restaurantID, action))
}

func (s *Service) digest(bookingID, tenantID, restaurantID int64, action string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d:%d:%d:%s", bookingID, tenantID, restaurantID, action)
	return mac.Sum(nil)
}
