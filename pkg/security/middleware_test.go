package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func protectedServer(t *testing.T, cfg SecConfig, inner http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(AuthenticateRequestMiddleware(cfg)(inner))
	t.Cleanup(srv.Close)
	return srv
}

func baseCfg() SecConfig {
	return SecConfig{
		FrontendKeys: map[string]struct{}{"fe-key": {}},
		BackendKeys:  map[string]struct{}{"be-key": {}},
	}
}

func TestMiddlewareRejectsMissingKey(t *testing.T) {
	srv := protectedServer(t, baseCfg(), func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})
	res, err := http.Get(srv.URL + "/v1/threads")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", res.Status)
	}
}

func TestMiddlewareAcceptsBearerAndHeaderKeys(t *testing.T) {
	for _, set := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer fe-key") },
		func(r *http.Request) { r.Header.Set("X-API-Key", "be-key") },
	} {
		called := false
		srv := protectedServer(t, baseCfg(), func(w http.ResponseWriter, r *http.Request) {
			called = true
		})
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/threads", nil)
		set(req)
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK || !called {
			t.Fatalf("authenticated request rejected: %v", res.Status)
		}
	}
}

func TestMiddlewareResolvesOwnerFromHeader(t *testing.T) {
	var owner string
	srv := protectedServer(t, baseCfg(), func(w http.ResponseWriter, r *http.Request) {
		owner = OwnerFromContext(r.Context())
	})
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/threads", nil)
	req.Header.Set("X-API-Key", "fe-key")
	req.Header.Set("X-User-ID", "alice")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	res.Body.Close()
	if owner != "alice" {
		t.Fatalf("owner = %q", owner)
	}
}

func TestMiddlewareExemptsProbesAndWebhooks(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/v1/webhooks/identity"} {
		called := false
		srv := protectedServer(t, baseCfg(), func(w http.ResponseWriter, r *http.Request) {
			called = true
		})
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		res.Body.Close()
		if !called {
			t.Fatalf("%s must bypass api-key auth", path)
		}
	}
}

func TestMiddlewareAnswersPreflight(t *testing.T) {
	cfg := baseCfg()
	cfg.AllowedOrigins = []string{"http://localhost:3000"}
	srv := protectedServer(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	})
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/v1/chat/send", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %v", res.Status)
	}
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow-origin = %q", got)
	}
}

func TestMiddlewareDisallowedOriginGetsNoCORSHeaders(t *testing.T) {
	cfg := baseCfg()
	cfg.AllowedOrigins = []string{"http://localhost:3000"}
	srv := protectedServer(t, cfg, func(w http.ResponseWriter, r *http.Request) {})
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/threads", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("X-API-Key", "fe-key")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	res.Body.Close()
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}

func TestMiddlewareRateLimitsPerKey(t *testing.T) {
	cfg := baseCfg()
	cfg.RPS = 1
	cfg.Burst = 2
	srv := protectedServer(t, cfg, func(w http.ResponseWriter, r *http.Request) {})

	var last int
	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/threads", nil)
		req.Header.Set("X-API-Key", "fe-key")
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		res.Body.Close()
		last = res.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}
