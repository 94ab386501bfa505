package paycapsule

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestNewService(t *testing.T) {
	_, err := NewService([]byte("short"))
	assert.Error(t, err)

	svc, err := NewService(testKey())
	assert.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestMintVerify(t *testing.T) {
	svc, err := NewService(testKey())
	assert.NoError(t, err)

	payload := Payload{
		BookingID:    42,
		TenantID:     7,
		RestaurantID: 3,
		Amount:       2500,
		Currency:     "EUR",
	}

	t.Run("round trip within TTL", func(t *testing.T) {
		envelope, err := svc.Mint(payload)
		assert.NoError(t, err)

		got, err := svc.Verify(envelope)
		assert.NoError(t, err)
		assert.Equal(t, payload.BookingID, got.BookingID)
		assert.Equal(t, payload.TenantID, got.TenantID)
		assert.Equal(t, payload.RestaurantID, got.RestaurantID)
		assert.Equal(t, payload.Amount, got.Amount)
		assert.Equal(t, payload.Currency, got.Currency)
		assert.WithinDuration(t, time.Now().Add(TTL), got.ExpiresAt, time.Minute)
	})

	t.Run("expired capsule is invalid even when untampered", func(t *testing.T) {
		envelope, err := svc.Mint(payload)
		assert.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(TTL + time.Minute) }
		defer func() { svc.now = time.Now }()

		_, err = svc.Verify(envelope)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("tampered envelope is invalid", func(t *testing.T) {
		envelope, err := svc.Mint(payload)
		assert.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(envelope)
		assert.NoError(t, err)
		raw[len(raw)-1] ^= 0x01
		tampered := base64.RawURLEncoding.EncodeToString(raw)

		_, err = svc.Verify(tampered)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("malformed envelopes are invalid", func(t *testing.T) {
		_, err := svc.Verify("not base64!!!")
		assert.ErrorIs(t, err, ErrInvalid)

		_, err = svc.Verify(base64.RawURLEncoding.EncodeToString([]byte("tiny")))
		assert.ErrorIs(t, err, ErrInvalid)

		_, err = svc.Verify("")
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("wrong key is invalid", func(t *testing.T) {
		envelope, err := svc.Mint(payload)
		assert.NoError(t, err)

		other, err := NewService([]byte("fedcba9876543210fedcba9876543210"))
		assert.NoError(t, err)

		_, err = other.Verify(envelope)
		assert.ErrorIs(t, err, ErrInvalid)
	})
}
