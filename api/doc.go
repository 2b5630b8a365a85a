// Package api serves the gateway's own JSON endpoints: login, second
// factors, token refresh, accounts, credential slots and user
// administration.
//
// Handlers decode the request, call one Engine method and render the
// result with [middleware.WriteJSON] or [middleware.WriteError]. Request
// bodies are strict: unknown fields are rejected with 400.
//
// # Architecture boundaries
//
// Authorization is decided before a handler runs. [middleware.Guard]
// attaches the caller identity; handlers only read it. Role checks that
// depend on the target (self-delete, self-demotion) live in the Engine.
//
// # What this package must NOT do
//
//   - Decide route access (the route table in middleware does).
//   - Touch Redis or tokens directly.
package api
