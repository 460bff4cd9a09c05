package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"
)

const testWebhookSecret = "whsec_dGVzdC1zaWduaW5nLWtleQ=="

func signedHeaders(t *testing.T, secret string, body []byte, at time.Time) http.Header {
	t.Helper()

	key, err := base64.StdEncoding.DecodeString(secret[len("whsec_"):])
	if err != nil {
		t.Fatal(err)
	}

	id := "msg_123"
	ts := strconv.FormatInt(at.Unix(), 10)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + ts + "."))
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", ts)
	h.Set("svix-signature", "v1,"+sig)
	return h
}

func testVerifier(t *testing.T, at time.Time) *WebhookVerifier {
	t.Helper()
	v, err := NewWebhookVerifier(testWebhookSecret)
	if err != nil {
		t.Fatal(err)
	}
	v.now = func() time.Time { return at }
	return v
}

func TestWebhookVerify(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)

	v := testVerifier(t, now)
	if err := v.Verify(signedHeaders(t, testWebhookSecret, body, now), body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestWebhookVerifyTamperedBody(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"type":"user.created"}`)

	v := testVerifier(t, now)
	headers := signedHeaders(t, testWebhookSecret, body, now)
	if err := v.Verify(headers, []byte(`{"type":"user.deleted"}`)); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestWebhookVerifyWrongSecret(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)

	v := testVerifier(t, now)
	otherSecret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("another-key"))
	if err := v.Verify(signedHeaders(t, otherSecret, body, now), body); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestWebhookVerifyStaleTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)

	v := testVerifier(t, now)
	headers := signedHeaders(t, testWebhookSecret, body, now.Add(-10*time.Minute))
	if err := v.Verify(headers, body); !errors.Is(err, ErrStaleTimestamp) {
		t.Errorf("expected ErrStaleTimestamp, got %v", err)
	}
}

func TestWebhookVerifyMissingHeaders(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	v := testVerifier(t, now)
	if err := v.Verify(http.Header{}, []byte(`{}`)); !errors.Is(err, ErrMissingSignature) {
		t.Errorf("expected ErrMissingSignature, got %v", err)
	}
}

func TestWebhookVerifyRotatedSignatures(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)

	v := testVerifier(t, now)
	headers := signedHeaders(t, testWebhookSecret, body, now)
	headers.Set("svix-signature", "v1,bm90LXZhbGlk "+headers.Get("svix-signature"))
	if err := v.Verify(headers, body); err != nil {
		t.Errorf("rotation set containing a valid signature rejected: %v", err)
	}
}
