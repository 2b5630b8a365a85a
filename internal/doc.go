// Package internal holds the gateway components that are not part of the
// public dnsgate API.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher plus Sink implementations)
//   - flows: pure orchestrators for login, refresh and logout
//   - limiters: per-user lockout tracker
//   - logging: context-aware structured logger over log/slog
//   - rate: per-address, per-endpoint fixed-window rate limiter
//   - stores: user records, credential slots, revocation ledger, TOTP and
//     passkey storage
//
// # What this package must NOT do
//
//   - Export types that appear in the public dnsgate API.
//   - Be imported from outside the dnsgate module.
package internal
