// Package paycapsule encrypts the short-lived parameter envelope used to
// build one-time payment URLs.
package paycapsule

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	nonceSize = 16
	tagSize   = 16

	// TTL is how long a minted capsule stays redeemable.
	TTL = 24 * time.Hour
)

// associatedData binds every capsule to the payment flow.
var associatedData = []byte("payment-token")

// ErrInvalid is the single result for every capsule failure: tampered tag,
// malformed envelope, unparsable payload or expired TTL. Remote callers must
// not be able to distinguish the failure modes.
var ErrInvalid = errors.New("payment capsule invalid or expired")

// Payload is the parameter set consumed by the payment processor.
type Payload struct {
	BookingID    int64     `json:"booking_id"`
	TenantID     int64     `json:"tenant_id"`
	RestaurantID int64     `json:"restaurant_id"`
	Amount       int64     `json:"amount"` // minor units
	Currency     string    `json:"currency"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Service seals and opens payment capsules with AES-256-GCM.
type Service struct {
	aead cipher.AEAD
	now  func() time.Time
}

// NewService creates a capsule service from a 32-byte key.
func NewService(key []byte) (*Service, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("payment key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Service{aead: aead, now: time.Now}, nil
}

// Mint seals a payload into a URL-safe base64 envelope. ExpiresAt is set to
// now + TTL regardless of what the caller put in the payload.
func (s *Service) Mint(p Payload) (string, error) {
	p.ExpiresAt = s.now().Add(TTL)

	plaintext, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends the tag after the ciphertext; the envelope layout wants
	// nonce || tag || ciphertext.
	sealed := s.aead.Seal(nil, nonce, plaintext, associatedData)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	envelope := make([]byte, 0, nonceSize+tagSize+len(ct))
	envelope = append(envelope, nonce...)
	envelope = append(envelope, tag...)
	envelope = append(envelope, ct...)

	return base64.RawURLEncoding.EncodeToString(envelope), nil
}

// Verify opens an envelope and returns its payload. The TTL check runs
// independently of tag verification; all failures collapse to ErrInvalid.
func (s *Service) Verify(envelope string) (*Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(envelope)
	if err != nil {
		return nil, ErrInvalid
	}
	if len(raw) < nonceSize+tagSize {
		return nil, ErrInvalid
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ct := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := s.aead.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, ErrInvalid
	}

	var p Payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, ErrInvalid
	}
	if s.now().After(p.ExpiresAt) {
		return nil, ErrInvalid
	}
	return &p, nil
}
