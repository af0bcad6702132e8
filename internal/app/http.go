package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"chatrelay/pkg/api"
	"chatrelay/pkg/api/handlers"
	"chatrelay/pkg/httpx"
	"chatrelay/pkg/security"
	"chatrelay/pkg/store"
)

const shutdownGrace = 10 * time.Second

// defaultMaxUpload bounds document upload bodies when no limit is
// configured.
const defaultMaxUpload = 25 << 20

// setupHTTPHandlers sets up all HTTP handlers on the provided mux.
func (a *App) setupHTTPHandlers(mux *http.ServeMux) {
	maxUpload := int64(a.eff.Config.Upload.MaxSize)
	if maxUpload == 0 {
		maxUpload = defaultMaxUpload
	}
	d := handlers.Deps{
		Registry:  a.registry,
		Sync:      a.sync,
		Store:     a.threadAPI,
		MaxUpload: maxUpload,
	}
	mux.Handle("/healthz", httpx.NetHTTPAdapter(healthzHandler))
	mux.Handle("/readyz", httpx.NetHTTPAdapter(a.readyzHandler))
	mux.Handle("/", api.Handler(d, a.webhook))
	mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	mux.Handle("/metrics", promhttp.Handler())
}

// readyzHandler reports readiness; the identity store must be open.
// Written against the engine-neutral httpx surface so the standalone
// probe binary serves the identical handler over fasthttp.
func (a *App) readyzHandler(w httpx.ResponseWriter, r *httpx.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

func healthzHandler(w httpx.ResponseWriter, r *httpx.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// startHTTP builds the handler, starts the HTTP server in a goroutine
// and returns a channel that will contain any server error.
func (a *App) startHTTP() <-chan error {
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)

	secCfg := security.SecConfig{
		AllowedOrigins: append([]string{}, a.eff.Config.Security.CORS.AllowedOrigins...),
		RPS:            a.eff.Config.Security.RateLimit.RPS,
		Burst:          a.eff.Config.Security.RateLimit.Burst,
		FrontendKeys:   map[string]struct{}{},
		BackendKeys:    map[string]struct{}{},
	}
	for _, k := range a.eff.Config.Security.APIKeys.Frontend {
		secCfg.FrontendKeys[k] = struct{}{}
	}
	for _, k := range a.eff.Config.Security.APIKeys.Backend {
		secCfg.BackendKeys[k] = struct{}{}
	}

	wrapped := security.AuthenticateRequestMiddleware(secCfg)(mux)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: wrapped}

	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
