package httpapi

import (
	"net/http"

	"github.com/omnisign/sessionguard/internal/platform/errors"
	"github.com/omnisign/sessionguard/internal/services/guard/profile"
	"github.com/omnisign/sessionguard/internal/services/guard/session"
)

type onboardRequest struct {
	Company    string `json:"company"`
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	PIN        string `json:"pin"`
	PINConfirm string `json:"pinConfirm"`
}

type profileEditRequest struct {
	Company        string `json:"company"`
	FullName       string `json:"fullName"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	TimeoutMinutes int    `json:"timeoutMinutes"`
	NewPIN         string `json:"newPin"`
	CurrentPIN     string `json:"currentPin"`
}

type pinUnlockRequest struct {
	PIN string `json:"pin"`
}

type forgotPINRequest struct {
	Confirmed bool `json:"confirmed"`
}

type directivesResponse struct {
	Directives []Directive `json:"directives"`
}

func (h *handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.Snapshot(r.Context())
	writeSnapshot(w, r, snap, err)
}

func (h *handler) handleForeground(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.Evaluate(r.Context())
	writeSnapshot(w, r, snap, err)
}

func (h *handler) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if _, err := readBody(w, r, onboardValidator, &req); err != nil {
		writeError(w, r, err, session.Snapshot{})
		return
	}
	snap, err := h.session.Onboard(r.Context(), session.Submission{
		Profile: profile.Profile{
			Company:  req.Company,
			FullName: req.FullName,
			Phone:    req.Phone,
			Email:    req.Email,
		},
		PIN:        req.PIN,
		PINConfirm: req.PINConfirm,
	})
	writeSnapshot(w, r, snap, err)
}

func (h *handler) handleUnlockPIN(w http.ResponseWriter, r *http.Request) {
	var req pinUnlockRequest
	if _, err := readBody(w, r, pinUnlockValidator, &req); err != nil {
		writeError(w, r, err, session.Snapshot{})
		return
	}
	snap, err := h.session.UnlockWithPIN(r.Context(), req.PIN)
	writeSnapshot(w, r, snap, err)
}

// handleUnlockBiometric blocks until the page completes, cancels, or lets the
// ceremony expire.
func (h *handler) handleUnlockBiometric(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.UnlockWithBiometric(r.Context())
	writeSnapshot(w, r, snap, err)
}

func (h *handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.RecordActivity(r.Context())
	writeSnapshot(w, r, snap, err)
}

func (h *handler) handleForgotPIN(w http.ResponseWriter, r *http.Request) {
	var req forgotPINRequest
	if _, err := readBody(w, r, forgotPINValidator, &req); err != nil {
		writeError(w, r, err, session.Snapshot{})
		return
	}
	snap, err := h.session.ForgotPIN(r.Context(), req.Confirmed)
	writeSnapshot(w, r, snap, err)
}

func (h *handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	settings, err := h.session.Settings(r.Context())
	if err != nil {
		snap, _ := h.session.Snapshot(r.Context())
		writeError(w, r, err, snap)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *handler) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	var req profileEditRequest
	if _, err := readBody(w, r, profileEditValidator, &req); err != nil {
		writeError(w, r, err, session.Snapshot{})
		return
	}
	snap, err := h.session.EditProfile(r.Context(), session.Edit{
		Profile: profile.Profile{
			Company:  req.Company,
			FullName: req.FullName,
			Phone:    req.Phone,
			Email:    req.Email,
		},
		TimeoutMinutes: req.TimeoutMinutes,
		NewPIN:         req.NewPIN,
		CurrentPIN:     req.CurrentPIN,
	})
	writeSnapshot(w, r, snap, err)
}

// handleDirectives hands queued page work over only while unlocked; prefill
// directives carry profile data.
func (h *handler) handleDirectives(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err, snap)
		return
	}
	if snap.State != session.StateUnlocked {
		writeError(w, r, errors.WithMetadata(errors.CodeStateDisallowsOp,
			"directives are only available while unlocked",
			map[string]string{"State": string(snap.State)}), snap)
		return
	}
	writeJSON(w, http.StatusOK, directivesResponse{Directives: h.directives.Drain()})
}
