// Package prometheus renders the gateway counters in Prometheus text
// exposition format.
//
// [New] accepts a [dnsgate.Engine] and exposes an [http.Handler] for the
// binary's /metrics route. Counter names are prefixed dnsgate_*_total; the
// single histogram is dnsgate_resolve_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
