package api

import (
	"fmt"
	"net/http"
	"strconv"

	"tablio/internal/metrics"
	"tablio/internal/paycapsule"
)

// PaymentLinkRequest parameters come from the query string.
// amount is in minor units; currency is an ISO 4217 code.

// PaymentLinkResponse carries the sealed payment token.
type PaymentLinkResponse struct {
	Token string `json:"token"`
}

// PaymentVerifyRequest is the request body for POST /api/payment/verify.
type PaymentVerifyRequest struct {
	Token string `json:"token"`
}

// PaymentVerifyResponse is the opened capsule returned to the payment page.
type PaymentVerifyResponse struct {
	Valid   bool                `json:"valid"`
	Payload *paycapsule.Payload `json:"payload,omitempty"`
}

// handlePaymentLink mints a sealed payment token for a booking awaiting
// payment. Staff only.
// GET /api/bookings/{id}/payment-link?amount=5000&currency=EUR
func (s *HTTPServer) handlePaymentLink(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment_link")

	c, err := s.staffCaller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	amount, currency, err := paymentParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The booking must exist within the caller's tenant before a capsule
	// naming it is sealed.
	booking, err := s.bookings.Get(r.Context(), c.tenantID, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	sealed, err := s.capsules.Mint(paycapsule.Payload{
		BookingID:    booking.ID,
		TenantID:     booking.TenantID,
		RestaurantID: booking.RestaurantID,
		Amount:       amount,
		Currency:     currency,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentLinkResponse{Token: sealed})
}

func paymentParams(r *http.Request) (amount int64, currency string, err error) {
	q := r.URL.Query()
	amount, err = strconv.ParseInt(q.Get("amount"), 10, 64)
	if err != nil || amount <= 0 {
		return 0, "", fmt.Errorf("amount must be a positive integer in minor units")
	}
	currency = q.Get("currency")
	if len(currency) != 3 {
		return 0, "", fmt.Errorf("currency must be a 3-letter code")
	}
	return amount, currency, nil
}

// handlePaymentVerify opens a payment token. Every failure mode returns the
// same invalid answer so the token reveals nothing about why it failed.
// POST /api/payment/verify
func (s *HTTPServer) handlePaymentVerify(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment_verify")

	var req PaymentVerifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	payload, err := s.capsules.Verify(req.Token)
	if err != nil {
		metrics.IncCapsuleFailure()
		writeJSON(w, http.StatusUnauthorized, PaymentVerifyResponse{Valid: false})
		return
	}
	writeJSON(w, http.StatusOK, PaymentVerifyResponse{Valid: true, Payload: payload})
}
