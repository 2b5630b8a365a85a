package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/dnsgate"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error       string `json:"error"`
	RetryAfter  int    `json:"retryAfter,omitempty"`
	LockedUntil int64  `json:"lockedUntil,omitempty"`
}

// WriteError renders err as {"error": ...} with the status from
// [dnsgate.ErrorStatus]. Lockouts and rate limits also carry a Retry-After
// header; lockouts add lockedUntil in Unix milliseconds.
func WriteError(w http.ResponseWriter, err error) {
	status := dnsgate.ErrorStatus(err)
	body := errorBody{Error: dnsgate.PublicMessage(err)}

	if ra := dnsgate.RetryAfter(err); ra > 0 {
		body.RetryAfter = ra
		w.Header().Set("Retry-After", strconv.Itoa(ra))
		if until := dnsgate.RetryUntil(err); !until.IsZero() && errors.Is(err, dnsgate.ErrAccountLocked) {
			body.LockedUntil = until.UnixMilli()
		}
	}
	WriteJSON(w, status, body)
}
