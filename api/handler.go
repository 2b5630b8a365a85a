package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrEthical07/dnsgate"
	"github.com/MrEthical07/dnsgate/middleware"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Handler serves the gateway's own JSON endpoints. It expects to run below
// [middleware.Guard], which attaches the caller identity.
type Handler struct {
	engine *dnsgate.Engine
	mux    *http.ServeMux
}

// New registers every gateway endpoint on a fresh mux.
func New(engine *dnsgate.Engine) *Handler {
	h := &Handler{engine: engine, mux: http.NewServeMux()}
	h.routes()
	return h
}

func (h *Handler) routes() {
	m := h.mux

	m.HandleFunc("POST /api/login", h.login)
	m.HandleFunc("POST /api/verify-totp", h.verifyTOTP)
	m.HandleFunc("POST /api/refresh", h.refresh)
	m.HandleFunc("POST /api/logout", h.logout)
	m.HandleFunc("POST /api/register", h.register)
	m.HandleFunc("POST /api/setup-account", h.setupAccount)
	m.HandleFunc("GET /api/me", h.me)

	m.HandleFunc("POST /api/account/password", h.changePassword)
	m.HandleFunc("GET /api/account/tokens", h.listSlots)
	m.HandleFunc("POST /api/account/tokens", h.addSlot)
	m.HandleFunc("DELETE /api/account/tokens/{index}", h.deleteSlot)

	m.HandleFunc("GET /api/admin/settings", h.settings)
	m.HandleFunc("GET /api/admin/users", h.listUsers)
	m.HandleFunc("POST /api/admin/users", h.inviteUser)
	m.HandleFunc("PUT /api/admin/users/{name}", h.updateUser)
	m.HandleFunc("DELETE /api/admin/users/{name}", h.deleteUser)

	m.HandleFunc("POST /api/totp/setup", h.totpSetup)
	m.HandleFunc("POST /api/totp/enable", h.totpEnable)
	m.HandleFunc("POST /api/totp/disable", h.totpDisable)
	m.HandleFunc("GET /api/totp/status", h.totpStatus)

	m.HandleFunc("POST /api/passkey/register-options", h.passkeyRegisterOptions)
	m.HandleFunc("POST /api/passkey/register-verify", h.passkeyRegisterVerify)
	m.HandleFunc("GET /api/passkey/credentials", h.listPasskeys)
	m.HandleFunc("DELETE /api/passkey/credentials/{id}", h.deletePasskey)
	m.HandleFunc("POST /api/passkey/login-options", h.passkeyLoginOptions)
	m.HandleFunc("POST /api/passkey/login-verify", h.passkeyLoginVerify)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

/*
====================================
HELPERS
====================================
*/

// decode reads a single JSON object into dst. Unknown fields are
// rejected. An empty body is accepted when optional is set.
func decode(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return fmt.Errorf("%w: malformed JSON body", dnsgate.ErrValidation)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", dnsgate.ErrValidation)
	}
	return nil
}

func readRaw(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable body", dnsgate.ErrValidation)
	}
	return body, nil
}

func identity(w http.ResponseWriter, r *http.Request) (*dnsgate.Identity, bool) {
	id, ok := dnsgate.IdentityFromContext(r.Context())
	if !ok || id.Username == "" {
		middleware.WriteError(w, dnsgate.ErrUnauthorized)
		return nil, false
	}
	return id, true
}

type okBody struct {
	Success bool `json:"success"`
}

func writeOK(w http.ResponseWriter) {
	middleware.WriteJSON(w, http.StatusOK, okBody{Success: true})
}
