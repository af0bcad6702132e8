package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatrelay/pkg/api/handlers"
	"chatrelay/pkg/identity"
)

// Handler builds the application router. All routes live under /v1; the
// identity webhook mounts there too but authenticates via its own
// signature scheme rather than the API-key middleware.
func Handler(d handlers.Deps, webhook *identity.Handler) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterChat(v1, d)
	handlers.RegisterThreads(v1, d)
	handlers.RegisterUpload(v1, d)
	webhook.Register(v1)
	return r
}
