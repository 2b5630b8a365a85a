package api

import (
	"net/http"

	"github.com/MrEthical07/dnsgate/middleware"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	res, err := h.engine.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) verifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	res, err := h.engine.VerifyTOTP(r.Context(), req.Username, req.Password, req.Code)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	pair, err := h.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pair)
}

// logout always succeeds once the bearer token has been accepted.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req refreshRequest
	_ = decode(r, &req, true)
	h.engine.Logout(r.Context(), id.Username, req.RefreshToken)
	writeOK(w)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	user, err := h.engine.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, user)
}

type setupRequest struct {
	Username   string `json:"username"`
	SetupToken string `json:"setupToken"`
	Password   string `json:"password"`
}

func (h *Handler) setupAccount(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decode(r, &req, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.engine.SetupAccount(r.Context(), req.Username, req.SetupToken, req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	profile, err := h.engine.Profile(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, profile)
}
