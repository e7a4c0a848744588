package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/chils-store/internal/domain/payment"
	"github.com/xenking/chils-store/internal/validation"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-GCash-Signature"

// Sign returns the signature the provider sends for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret, body []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return subtle.ConstantTimeCompare(mac.Sum(nil), got) == 1
}

// gcashWebhook accepts the provider's payment result. Requests with a
// missing or wrong signature are rejected before the body is parsed.
func (h *Handler) gcashWebhook(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())
	if h.cfg.WebhookSecret == "" {
		writeMessage(w, http.StatusServiceUnavailable, "Payment webhook is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, r, errBadJSON)
		return
	}
	if !validSignature([]byte(h.cfg.WebhookSecret), body, r.Header.Get(SignatureHeader)) {
		lg.Warn("Rejected webhook with invalid signature")
		writeMessage(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	ev, err := decodeProviderEvent(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.payments.HandleProviderEvent(r.Context(), ev)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lg.Info("Webhook processed",
		zap.String("reference", ev.Reference),
		zap.String("outcome", string(ev.Outcome)),
		zap.String("payment_status", string(res.Payment.Status)),
	)
	writeData(w, http.StatusOK, newConfirmationResponse(res))
}

// decodeProviderEvent parses {"reference","status","transactionId","reason"}.
func decodeProviderEvent(body []byte) (payment.ProviderEvent, error) {
	var ev payment.ProviderEvent
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "reference":
			ev.Reference, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			ev.Outcome = payment.Outcome(s)
		case "transactionId":
			ev.TransactionID, err = d.Str()
		case "reason":
			ev.Reason, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return ev, errors.Wrap(errBadJSON, err.Error())
	}

	switch {
	case ev.Reference == "":
		return ev, validation.Invalid("reference", "is required")
	case ev.Outcome != payment.OutcomeCompleted && ev.Outcome != payment.OutcomeFailed:
		return ev, validation.Invalid("status", "must be one of: completed, failed")
	}
	return ev, nil
}
