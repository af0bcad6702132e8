package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"chatrelay/pkg/gateway"
	"chatrelay/pkg/models"
	"chatrelay/pkg/security"
	"chatrelay/pkg/utils"
)

// RegisterUpload registers the document ingestion endpoint.
func RegisterUpload(r *mux.Router, d Deps) {
	r.HandleFunc("/documents/upload", d.uploadDocuments).Methods(http.MethodPost)
}

// uploadDocuments handles POST /v1/documents/upload. Files arrive as
// multipart parts named "files" with an optional "thread_id" field; the
// ingestion service's JSON response is passed through unchanged, with
// the adopted thread id in the X-Thread-ID header.
func (d Deps) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	owner := security.OwnerFromContext(r.Context())
	if owner == "" {
		utils.JSONError(w, http.StatusUnauthorized, "caller identity required")
		return
	}
	if d.MaxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, d.MaxUpload)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	c := d.Registry.For(owner)
	if tid := r.FormValue("thread_id"); tid != c.ActiveThread() {
		if err := c.SwitchThread(r.Context(), tid); err != nil {
			utils.JSONError(w, http.StatusBadGateway, err.Error())
			return
		}
	}

	var files []gateway.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "unreadable file part")
			return
		}
		defer f.Close()
		files = append(files, gateway.File{Name: fh.Filename, Content: f})
	}

	outcome, err := c.Upload(r.Context(), files)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, models.ErrNoFiles):
			status = http.StatusBadRequest
		case errors.Is(err, models.ErrUploadInFlight):
			status = http.StatusConflict
		}
		utils.JSONError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Thread-ID", outcome.ThreadID)
	if outcome.ThreadCreated {
		w.Header().Set("X-Thread-Created", "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(outcome.Response)
}
