package api

import (
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/dnsgate"
	"github.com/MrEthical07/dnsgate/middleware"
)

type codeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) totpSetup(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	setup, err := h.engine.SetupTOTP(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, setup)
}

func (h *Handler) totpEnable(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if err := decode(r, &req, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.engine.EnableTOTP(r.Context(), id, req.Code); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w)
}

func (h *Handler) totpDisable(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if err := decode(r, &req, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.engine.DisableTOTP(r.Context(), id, req.Code); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w)
}

type totpStatusBody struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) totpStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	enabled, err := h.engine.TOTPStatus(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, totpStatusBody{Enabled: enabled})
}

/*
====================================
PASSKEYS
====================================
*/

func (h *Handler) passkeyRegisterOptions(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	opts, err := h.engine.PasskeyRegisterOptions(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, opts)
}

// passkeyRegisterRequest wraps the browser's attestation response with
// the label the user picked for it.
type passkeyRegisterRequest struct {
	Name       string          `json:"name"`
	Credential json.RawMessage `json:"credential"`
}

func (h *Handler) passkeyRegisterVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req passkeyRegisterRequest
	if err := decode(r, &req, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	view, err := h.engine.PasskeyRegisterVerify(r.Context(), id, req.Name, req.Credential)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, view)
}

type passkeysBody struct {
	Credentials []dnsgate.PasskeyView `json:"credentials"`
}

func (h *Handler) listPasskeys(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	list, err := h.engine.ListPasskeys(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if list == nil {
		list = []dnsgate.PasskeyView{}
	}
	middleware.WriteJSON(w, http.StatusOK, passkeysBody{Credentials: list})
}

func (h *Handler) deletePasskey(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeletePasskey(r.Context(), id, r.PathValue("id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w)
}

type loginOptionsRequest struct {
	Username string `json:"username"`
}

func (h *Handler) passkeyLoginOptions(w http.ResponseWriter, r *http.Request) {
	var req loginOptionsRequest
	if err := decode(r, &req, true); err != nil {
		middleware.WriteError(w, err)
		return
	}
	opts, err := h.engine.PasskeyLoginOptions(r.Context(), req.Username)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, opts)
}

// passkeyLoginVerify passes the assertion through untouched; its shape is
// owned by the WebAuthn parser.
func (h *Handler) passkeyLoginVerify(w http.ResponseWriter, r *http.Request) {
	body, err := readRaw(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	res, err := h.engine.PasskeyLoginVerify(r.Context(), body)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}
