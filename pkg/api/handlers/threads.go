package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatrelay/pkg/security"
	"chatrelay/pkg/utils"
)

// RegisterThreads registers thread collection and navigation routes.
func RegisterThreads(r *mux.Router, d Deps) {
	r.HandleFunc("/threads", d.listThreads).Methods(http.MethodGet)
	r.HandleFunc("/threads", d.createThread).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/messages", d.threadMessages).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", d.deleteThread).Methods(http.MethodDelete)
}

// listThreads returns the owner's threads most-recently-active first.
func (d Deps) listThreads(w http.ResponseWriter, r *http.Request) {
	owner := security.OwnerFromContext(r.Context())
	if owner == "" {
		utils.JSONError(w, http.StatusUnauthorized, "caller identity required")
		return
	}
	ths, err := d.Sync.List(r.Context(), owner)
	if err != nil {
		utils.JSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"threads": ths})
}

func (d Deps) createThread(w http.ResponseWriter, r *http.Request) {
	owner := security.OwnerFromContext(r.Context())
	if owner == "" {
		utils.JSONError(w, http.StatusUnauthorized, "caller identity required")
		return
	}
	th, err := d.Sync.Create(r.Context(), owner)
	if err != nil {
		utils.JSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, th)
}

// threadMessages is the navigation entry point: it switches the owner's
// session to the requested thread (replacing the working copy wholesale
// and invalidating any suspended stream loop) and returns the normalized
// sequence.
func (d Deps) threadMessages(w http.ResponseWriter, r *http.Request) {
	owner := security.OwnerFromContext(r.Context())
	if owner == "" {
		utils.JSONError(w, http.StatusUnauthorized, "caller identity required")
		return
	}
	id := mux.Vars(r)["id"]
	c := d.Registry.For(owner)
	if err := c.SwitchThread(r.Context(), id); err != nil {
		utils.JSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"thread_id": id,
		"messages":  c.Messages(),
	})
}

func (d Deps) deleteThread(w http.ResponseWriter, r *http.Request) {
	owner := security.OwnerFromContext(r.Context())
	if owner == "" {
		utils.JSONError(w, http.StatusUnauthorized, "caller identity required")
		return
	}
	id := mux.Vars(r)["id"]
	if err := d.Store.Delete(r.Context(), id); err != nil {
		utils.JSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	d.Sync.Forget(owner, id)
	c := d.Registry.For(owner)
	if c.ActiveThread() == id {
		_ = c.SwitchThread(r.Context(), "")
	}
	w.WriteHeader(http.StatusNoContent)
}
