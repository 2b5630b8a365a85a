package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/MrEthical07/dnsgate"
	"github.com/MrEthical07/dnsgate/middleware"
)

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req passwordChangeRequest
	if err := decode(r, &req, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.engine.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w)
}

/*
====================================
CREDENTIAL SLOTS
====================================
*/

type slotsBody struct {
	Accounts []dnsgate.SlotView `json:"accounts"`
}

func (h *Handler) listSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	slots, err := h.engine.ListSlots(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if slots == nil {
		slots = []dnsgate.SlotView{}
	}
	middleware.WriteJSON(w, http.StatusOK, slotsBody{Accounts: slots})
}

func (h *Handler) addSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var in dnsgate.SlotInput
	if err := decode(r, &in, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	slot, err := h.engine.AddSlot(r.Context(), id, in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, slot)
}

func (h *Handler) deleteSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		middleware.WriteError(w, fmt.Errorf("%w: index must be a non-negative integer", dnsgate.ErrValidation))
		return
	}
	if err := h.engine.DeleteSlot(r.Context(), id, index); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w)
}

/*
====================================
ADMIN
====================================
*/

func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.Settings())
}

type usersBody struct {
	Users []dnsgate.UserView `json:"users"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	users, err := h.engine.ListUsers(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if users == nil {
		users = []dnsgate.UserView{}
	}
	middleware.WriteJSON(w, http.StatusOK, usersBody{Users: users})
}

func (h *Handler) inviteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var in dnsgate.InviteInput
	if err := decode(r, &in, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	inv, err := h.engine.Invite(r.Context(), id, in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, inv)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var upd dnsgate.UserUpdate
	if err := decode(r, &upd, false); err != nil {
		middleware.WriteError(w, err)
		return
	}
	user, err := h.engine.UpdateUser(r.Context(), id, r.PathValue("name"), upd)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeleteUser(r.Context(), id, r.PathValue("name")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w)
}
