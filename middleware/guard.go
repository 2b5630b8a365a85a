package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/dnsgate"
	"github.com/MrEthical07/dnsgate/upstream"
)

const (
	headerClientToken  = "X-Cloudflare-Token"
	headerClientKind   = "X-Cloudflare-Token-Kind"
	headerClientEmail  = "X-Cloudflare-Email"
	headerAccountIndex = "X-Managed-Account-Index"
)

// Guard runs the authorization resolver for every request below it. The
// order is fixed: rate limit, public routes, client mode, bearer token,
// role check, credential resolution, zone check. On success the resolved
// [dnsgate.Identity] is attached to the request context.
func Guard(engine *dnsgate.Engine, routes *RouteTable) func(http.Handler) http.Handler {
	if routes == nil {
		routes = NewRouteTable(DefaultRoutes)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, dnsgate.ErrEngineNotReady)
				return
			}
			start := time.Now()
			ctx := r.Context()
			path := r.URL.Path

			if err := engine.CheckRateLimit(ctx, dnsgate.ClientIPFromContext(ctx), path); err != nil {
				WriteError(w, err)
				return
			}

			access := routes.Lookup(path)
			if access == AccessPublic {
				next.ServeHTTP(w, r)
				return
			}

			if access == AccessProxied {
				if token := strings.TrimSpace(r.Header.Get(headerClientToken)); token != "" {
					id := &dnsgate.Identity{
						ClientMode: true,
						Credential: &upstream.Credential{
							Token: token,
							Kind:  clientKind(r.Header.Get(headerClientKind)),
							Email: r.Header.Get(headerClientEmail),
						},
					}
					engine.RecordResolve(time.Since(start), dnsgate.MetricResolverClientMode)
					engine.RecordClientMode(ctx, path)
					next.ServeHTTP(w, r.WithContext(dnsgate.WithIdentity(ctx, id)))
					return
				}
			}

			id, err := resolve(ctx, engine, r, access)
			if err != nil {
				outcome := dnsgate.MetricResolverForbidden
				if s := dnsgate.ErrorStatus(err); s == http.StatusUnauthorized {
					outcome = dnsgate.MetricResolverUnauthorized
				}
				engine.RecordResolve(time.Since(start), outcome)
				username, role := "", ""
				if id != nil {
					username, role = id.Username, id.Role
				}
				engine.RecordDenied(ctx, username, role, path, err)
				WriteError(w, err)
				return
			}

			engine.RecordResolve(time.Since(start))
			next.ServeHTTP(w, r.WithContext(dnsgate.WithIdentity(ctx, id)))
		})
	}
}

// resolve authenticates the bearer token and applies the checks of access.
// The partially resolved identity is returned with the error for auditing.
func resolve(ctx context.Context, engine *dnsgate.Engine, r *http.Request, access Access) (*dnsgate.Identity, error) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, dnsgate.ErrUnauthorized
	}
	id, err := engine.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	switch access {
	case AccessIdentity:
		return id, nil
	case AccessAdmin:
		if !id.IsAdmin() {
			return id, dnsgate.ErrForbidden
		}
		return id, nil
	}

	if err := engine.LoadIdentity(ctx, id); err != nil {
		return id, err
	}
	index, err := accountIndex(r.Header.Get(headerAccountIndex))
	if err != nil {
		return id, err
	}
	cred, err := engine.ResolveCredential(ctx, id, index)
	if err != nil {
		return id, err
	}
	id.AccountIndex = index
	id.Credential = cred

	if zoneID, ok := upstream.ZoneIDFromPath(r.URL.Path); ok {
		if err := engine.CheckZone(ctx, id, zoneID); err != nil {
			return id, err
		}
	}
	return id, nil
}

func accountIndex(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", dnsgate.ErrValidation, headerAccountIndex)
	}
	return n, nil
}

func clientKind(value string) string {
	if strings.EqualFold(strings.TrimSpace(value), upstream.KindGlobalKey) {
		return upstream.KindGlobalKey
	}
	return upstream.KindAPIToken
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
