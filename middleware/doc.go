// Package middleware holds the HTTP front of the gateway: CORS, the JSON
// content-type check, client address extraction and the authorization
// resolver.
//
// # Guards
//
//   - [CORS] reflects the request Origin and answers preflights.
//   - [CSRF] requires application/json on mutating requests.
//   - [ClientIP] records the caller address for rate limits and audit.
//   - [Guard] authenticates the caller, applies the [RouteTable] and
//     resolves the upstream credential.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; token checks, rate windows and
// credential lookup all happen in dnsgate.Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
package middleware
