package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"log"
	"net/http"

	"github.com/omnisign/sessionguard/internal/platform/errors"
	"github.com/omnisign/sessionguard/internal/platform/errors/i18n"
	"github.com/omnisign/sessionguard/internal/services/guard/session"
)

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []string          `json:"details,omitempty"`
	Session *session.Snapshot `json:"session,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

// writeError renders err with a message in the caller's language. snap is
// attached when it carries a state.
func writeError(w http.ResponseWriter, r *http.Request, err error, snap session.Snapshot) {
	code := errors.CodeOf(err)
	var metadata map[string]string
	if domainErr, ok := errors.As(err); ok {
		metadata = domainErr.Metadata
	}
	if code.Kind() == errors.KindInternal {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}

	catalog := i18n.GetCatalog(i18n.MatchLocale(r.Header.Get("Accept-Language")))
	body := errorResponse{
		Code:    string(code),
		Message: catalog.Format(string(code), metadata),
	}
	var invalid *invalidRequest
	if stderrors.As(err, &invalid) {
		body.Details = invalid.details
	}
	if snap.State != "" {
		body.Session = &snap
	}
	writeJSON(w, code.HTTPStatus(), body)
}

// writeSnapshot answers a session operation: the snapshot on success, the
// error with the snapshot attached otherwise.
func writeSnapshot(w http.ResponseWriter, r *http.Request, snap session.Snapshot, err error) {
	if err != nil {
		writeError(w, r, err, snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
