// Package rate implements the per-address, per-endpoint fixed-window request
// limiter.
//
// # Window semantics
//
// Each limited endpoint has its own (max, window) rule. A window record
// {count, windowStart} lives at RATELIMIT:{ip}:{endpoint} with a TTL of twice
// the window. Once more than window has elapsed since windowStart the record
// is replaced by a fresh window. Requests over the limit are rejected with a
// retry-after in whole seconds, and the incremented count is still written.
//
// Endpoints missing from the rule table never touch Redis.
//
// The read-modify-write is not atomic: concurrent requests for one key may
// each observe the same count and under-enforce the limit by the number of
// racers.
package rate
