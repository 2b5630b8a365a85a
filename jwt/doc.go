// Package jwt issues and verifies the gateway's signed tokens: short-lived
// access tokens carrying subject and role, and long-lived refresh tokens that
// additionally carry a type marker and a unique identifier used for revocation.
//
// Tokens are stateless. Revocation of refresh identifiers is handled by the
// caller; this package only checks signature, algorithm, type and expiry.
package jwt
