package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/omnisign/sessionguard/internal/platform/errors"
	"github.com/omnisign/sessionguard/internal/services/guard/session"
)

type capabilityRequest struct {
	Available bool `json:"available"`
}

func (h *handler) ceremoniesOrError(w http.ResponseWriter, r *http.Request) bool {
	if h.ceremonies != nil {
		return true
	}
	writeError(w, r, errors.New(errors.CodeBiometricUnavailable, "biometric relay is not configured"), session.Snapshot{})
	return false
}

func (h *handler) handleCapability(w http.ResponseWriter, r *http.Request) {
	if !h.ceremoniesOrError(w, r) {
		return
	}
	var req capabilityRequest
	if _, err := readBody(w, r, capabilityValidator, &req); err != nil {
		writeError(w, r, err, session.Snapshot{})
		return
	}
	h.ceremonies.SetAvailable(req.Available)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handlePendingCeremony(w http.ResponseWriter, r *http.Request) {
	if !h.ceremoniesOrError(w, r) {
		return
	}
	ceremony, ok := h.ceremonies.Pending()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ceremony)
}

func (h *handler) handleCompleteCeremony(w http.ResponseWriter, r *http.Request) {
	if !h.ceremoniesOrError(w, r) {
		return
	}
	raw, err := readBody(w, r, credentialValidator, nil)
	if err != nil {
		writeError(w, r, err, session.Snapshot{})
		return
	}
	if err := h.ceremonies.Complete(chi.URLParam(r, "id"), raw); err != nil {
		writeError(w, r, err, session.Snapshot{})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleCancelCeremony(w http.ResponseWriter, r *http.Request) {
	if !h.ceremoniesOrError(w, r) {
		return
	}
	if err := h.ceremonies.Cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, session.Snapshot{})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
