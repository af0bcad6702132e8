package identity

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"chatrelay/pkg/store"
)

func webhookServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	openTestStore(t)
	r := mux.NewRouter()
	NewHandler(secret, 0).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func signedRequest(t *testing.T, url, secret string, body []byte) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req, err := http.NewRequest(http.MethodPost, url+"/webhooks/identity", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", ts)
	req.Header.Set("svix-signature", Sign(secret, body, "msg_1", ts))
	return req
}

func TestWebhookAppliesSignedEvent(t *testing.T) {
	secret := testSecret()
	srv := webhookServer(t, secret)

	body := []byte(`{"type":"user.created","data":{"id":"u1","first_name":"Ada","email_addresses":[{"email_address":"ada@example.com"}]}}`)
	res, err := http.DefaultClient.Do(signedRequest(t, srv.URL, secret, body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %v", res.Status)
	}
	rec, err := store.GetIdentity("u1")
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if rec.Email != "ada@example.com" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	secret := testSecret()
	srv := webhookServer(t, secret)

	body := []byte(`{"type":"user.created","data":{"id":"u1"}}`)
	req := signedRequest(t, srv.URL, secret, body)
	req.Header.Set("svix-signature", "v1,AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", res.Status)
	}
	if _, err := store.GetIdentity("u1"); err == nil {
		t.Fatal("unverified event must leave no side effects")
	}
}

func TestWebhookRejectsUnsignedDelivery(t *testing.T) {
	secret := testSecret()
	srv := webhookServer(t, secret)

	res, err := http.Post(srv.URL+"/webhooks/identity", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", res.Status)
	}
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	secret := testSecret()
	srv := webhookServer(t, secret)

	body := []byte(`{not json`)
	res, err := http.DefaultClient.Do(signedRequest(t, srv.URL, secret, body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", res.Status)
	}
}

func TestWebhookAcceptsAlternateHeaderNames(t *testing.T) {
	secret := testSecret()
	srv := webhookServer(t, secret)

	body := []byte(`{"type":"user.deleted","data":{"id":"ghost"}}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/identity", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("webhook-id", "msg_2")
	req.Header.Set("webhook-timestamp", ts)
	req.Header.Set("webhook-signature", Sign(secret, body, "msg_2", ts))
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %v", res.Status)
	}
}
