// Package flows contains pure-function orchestrators for the token-issuing
// Engine operations: login, refresh and logout.
//
// Each flow function (RunLogin, RunRefresh, RunLogout) accepts a typed
// dependency struct and returns a result carrying a failure kind. The root
// package maps failure kinds to its sentinel errors, metrics and audit
// events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import dnsgate (to avoid import cycles).
//   - Choose HTTP statuses or error messages.
package flows
