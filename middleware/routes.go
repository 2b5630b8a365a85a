package middleware

import (
	"sort"
	"strings"
)

// Access is the authorization class of a route.
type Access int

const (
	// AccessProxied routes need an upstream credential: client mode or a
	// bearer token followed by credential resolution and the zone check.
	AccessProxied Access = iota
	// AccessPublic routes are forwarded without any credential.
	AccessPublic
	// AccessIdentity routes need a bearer token and work on the identity
	// only.
	AccessIdentity
	// AccessAdmin routes need a bearer token with the admin role.
	AccessAdmin
)

func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessIdentity:
		return "identity"
	case AccessAdmin:
		return "admin"
	default:
		return "proxied"
	}
}

// Route maps a path to its access class. A Pattern ending in "/" matches
// every path below it; any other Pattern matches exactly.
type Route struct {
	Pattern string
	Access  Access
}

// DefaultRoutes is the gateway's route-permission table. Paths that match
// nothing are proxied.
var DefaultRoutes = []Route{
	{"/api/login", AccessPublic},
	{"/api/verify-totp", AccessPublic},
	{"/api/refresh", AccessPublic},
	{"/api/register", AccessPublic},
	{"/api/setup-account", AccessPublic},
	{"/api/passkey/login-options", AccessPublic},
	{"/api/passkey/login-verify", AccessPublic},

	{"/api/logout", AccessIdentity},
	{"/api/me", AccessIdentity},
	{"/api/account/", AccessIdentity},
	{"/api/totp/", AccessIdentity},
	{"/api/passkey/", AccessIdentity},
	{"/api/admin/settings", AccessIdentity},

	{"/api/admin/", AccessAdmin},
}

// RouteTable resolves a request path to its [Access] class. The longest
// matching pattern wins. A RouteTable is read-only after construction.
type RouteTable struct {
	exact    map[string]Access
	prefixes []Route
}

func NewRouteTable(routes []Route) *RouteTable {
	t := &RouteTable{exact: make(map[string]Access, len(routes))}
	for _, r := range routes {
		if strings.HasSuffix(r.Pattern, "/") {
			t.prefixes = append(t.prefixes, r)
			continue
		}
		t.exact[r.Pattern] = r.Access
	}
	sort.Slice(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].Pattern) > len(t.prefixes[j].Pattern)
	})
	return t
}

// Lookup returns the access class of path.
func (t *RouteTable) Lookup(path string) Access {
	if a, ok := t.exact[path]; ok {
		return a
	}
	for _, r := range t.prefixes {
		if strings.HasPrefix(path, r.Pattern) {
			return r.Access
		}
	}
	return AccessProxied
}
