// Package dnsgate is the authentication and session gateway of a DNS
// dashboard. It verifies passwords, TOTP codes and passkeys, issues access
// and refresh tokens, enforces lockout and per-endpoint rate limits, and
// resolves which upstream provider credential a request should use.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. The Engine keeps no request
// state in memory; lockout counters, rate windows, revocations and
// credential slots all live in Redis.
//
// # Architecture boundaries
//
// dnsgate is the public surface. It exposes [Engine], [Builder], [Config],
// the sentinel errors and value types. Store access, counters, audit
// dispatch and login/refresh orchestration live under internal/ and are
// never exported. HTTP concerns live in the middleware and api packages.
//
// # Counters under concurrency
//
// Lockout and rate-limit counters are plain read-modify-write JSON records.
// Two concurrent requests for the same key may both read the old count, so
// limits can be under-enforced by the number of racing requests. Windows
// are fixed, not sliding.
package dnsgate
