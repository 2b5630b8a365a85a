package dnsgate

import (
	"context"
	"fmt"

	"github.com/MrEthical07/dnsgate/upstream"
)

// ResolveCredential picks the upstream credential for id at account index.
// The caller's own slot wins. The admin identity, by name and role, falls
// back to the deployment credentials. Anything else fails closed.
func (e *Engine) ResolveCredential(ctx context.Context, id *Identity, index int) (*upstream.Credential, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if id == nil || id.Username == "" {
		return nil, ErrUnauthorized
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: account index must be non-negative", ErrValidation)
	}

	slot, err := e.accounts.Get(ctx, id.Username, index)
	if err != nil {
		return nil, storeErr(err)
	}
	if slot != nil && slot.Token != "" {
		return &upstream.Credential{Token: slot.Token, Kind: slotKind(slot.Kind), Email: slot.Email}, nil
	}

	if id.Username == AdminUsername && id.IsAdmin() {
		legacy := e.config.Legacy.Accounts
		if index < len(legacy) && legacy[index].Token != "" {
			a := legacy[index]
			return &upstream.Credential{Token: a.Token, Kind: slotKind(a.Kind), Email: a.Email}, nil
		}
	}
	return nil, ErrAccountNotConfigured
}

// LoadIdentity fills the allow-list of id from the stored record. A missing
// or non-active record invalidates the session.
func (e *Engine) LoadIdentity(ctx context.Context, id *Identity) error {
	u, err := e.requireUser(ctx, id)
	if err != nil {
		return err
	}
	id.Role = u.Role
	id.AllowedZones = u.AllowedZones
	return nil
}

// CheckZone enforces the caller's zone allow-list for zoneID. Admins and
// callers with an empty list pass without an upstream lookup. A failed
// lookup denies access.
func (e *Engine) CheckZone(ctx context.Context, id *Identity, zoneID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if id.IsAdmin() || len(id.AllowedZones) == 0 {
		return nil
	}
	if e.upstream == nil || id.Credential == nil {
		return ErrUpstreamUnavailable
	}

	name, err := e.upstream.ZoneName(ctx, *id.Credential, zoneID)
	if err != nil {
		e.metricInc(MetricUpstreamFailure)
		e.logger.Warn(ctx, "zone lookup failed", "zone_id", zoneID, "error", err)
		return ErrUpstreamUnavailable
	}
	if !upstream.IsZoneAllowed(id.AllowedZones, name) {
		e.metricInc(MetricZoneDenied)
		e.emitAudit(ctx, auditEventAccessDenied, false, id.Username, id.Role, ErrZoneNotAllowed, func() map[string]string {
			return map[string]string{"zone": name}
		})
		return ErrZoneNotAllowed
	}
	return nil
}

// RecordDenied audits a request the resolver refused.
func (e *Engine) RecordDenied(ctx context.Context, username, role, path string, err error) {
	e.emitAudit(ctx, auditEventAccessDenied, false, username, role, err, func() map[string]string {
		return map[string]string{"path": path}
	})
}

// RecordClientMode audits a request forwarded with a caller-supplied
// upstream token.
func (e *Engine) RecordClientMode(ctx context.Context, path string) {
	e.emitAudit(ctx, auditEventClientModeForwarded, true, "", "", nil, func() map[string]string {
		return map[string]string{"path": path}
	})
}
