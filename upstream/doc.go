// Package upstream talks to the DNS provider on behalf of an authenticated
// caller: zone-name lookup for per-user zone lists, credential checks when a
// slot is added, and a reverse proxy that forwards resolved requests with
// the selected credential attached.
package upstream
