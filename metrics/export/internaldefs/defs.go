package internaldefs

import (
	"github.com/MrEthical07/dnsgate"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   dnsgate.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   dnsgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: dnsgate.MetricLoginSuccess, Name: "dnsgate_login_success_total", Help: "Successful logins."},
	{ID: dnsgate.MetricLoginFailure, Name: "dnsgate_login_failure_total", Help: "Logins rejected for an unknown user or wrong password."},
	{ID: dnsgate.MetricLoginLocked, Name: "dnsgate_login_locked_total", Help: "Logins refused or newly locked by the lockout tracker."},
	{ID: dnsgate.MetricLoginPending, Name: "dnsgate_login_pending_total", Help: "Logins by invited users who have not completed setup."},
	{ID: dnsgate.MetricLegacyHashUpgraded, Name: "dnsgate_legacy_hash_upgraded_total", Help: "Unsalted digests rewritten after login."},
	{ID: dnsgate.MetricAdminBootstrapped, Name: "dnsgate_admin_bootstrapped_total", Help: "Admin records created from the legacy password."},
	{ID: dnsgate.MetricRateLimitHit, Name: "dnsgate_rate_limit_hit_total", Help: "Requests denied by an endpoint rate window."},
	{ID: dnsgate.MetricTOTPRequired, Name: "dnsgate_totp_required_total", Help: "Logins paused for a TOTP code."},
	{ID: dnsgate.MetricTOTPSuccess, Name: "dnsgate_totp_success_total", Help: "Accepted TOTP codes."},
	{ID: dnsgate.MetricTOTPFailure, Name: "dnsgate_totp_failure_total", Help: "Rejected TOTP codes."},
	{ID: dnsgate.MetricTOTPEnabled, Name: "dnsgate_totp_enabled_total", Help: "TOTP activations."},
	{ID: dnsgate.MetricTOTPDisabled, Name: "dnsgate_totp_disabled_total", Help: "TOTP removals."},
	{ID: dnsgate.MetricRefreshSuccess, Name: "dnsgate_refresh_success_total", Help: "Refresh token rotations."},
	{ID: dnsgate.MetricRefreshFailure, Name: "dnsgate_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: dnsgate.MetricRefreshRevoked, Name: "dnsgate_refresh_revoked_total", Help: "Refresh attempts with a revoked token."},
	{ID: dnsgate.MetricLogout, Name: "dnsgate_logout_total", Help: "Logout calls."},
	{ID: dnsgate.MetricRevocationWriteFailed, Name: "dnsgate_revocation_write_failed_total", Help: "Refresh revocations that could not be stored."},
	{ID: dnsgate.MetricPasskeyRegistered, Name: "dnsgate_passkey_registered_total", Help: "Passkeys registered."},
	{ID: dnsgate.MetricPasskeySuccess, Name: "dnsgate_passkey_success_total", Help: "Successful passkey logins."},
	{ID: dnsgate.MetricPasskeyFailure, Name: "dnsgate_passkey_failure_total", Help: "Failed passkey ceremonies."},
	{ID: dnsgate.MetricPasskeyReplay, Name: "dnsgate_passkey_replay_total", Help: "Passkey assertions with a non-increasing sign counter."},
	{ID: dnsgate.MetricRegistrationSuccess, Name: "dnsgate_registration_success_total", Help: "Self-registrations."},
	{ID: dnsgate.MetricRegistrationDuplicate, Name: "dnsgate_registration_duplicate_total", Help: "Registrations rejected for a taken username."},
	{ID: dnsgate.MetricInvitationCreated, Name: "dnsgate_invitation_created_total", Help: "Users invited by an admin."},
	{ID: dnsgate.MetricAccountSetup, Name: "dnsgate_account_setup_total", Help: "Invitations completed with a setup token."},
	{ID: dnsgate.MetricPasswordChanged, Name: "dnsgate_password_changed_total", Help: "Password changes."},
	{ID: dnsgate.MetricUserDeleted, Name: "dnsgate_user_deleted_total", Help: "Users deleted by an admin."},
	{ID: dnsgate.MetricSlotCreated, Name: "dnsgate_slot_created_total", Help: "Upstream credential slots added."},
	{ID: dnsgate.MetricSlotDeleted, Name: "dnsgate_slot_deleted_total", Help: "Upstream credential slots removed."},
	{ID: dnsgate.MetricSlotsMigrated, Name: "dnsgate_slots_migrated_total", Help: "Legacy credentials copied into admin slots."},
	{ID: dnsgate.MetricResolverUnauthorized, Name: "dnsgate_resolver_unauthorized_total", Help: "Requests rejected for missing or invalid credentials."},
	{ID: dnsgate.MetricResolverForbidden, Name: "dnsgate_resolver_forbidden_total", Help: "Requests rejected by role, credential or zone checks."},
	{ID: dnsgate.MetricResolverClientMode, Name: "dnsgate_resolver_client_mode_total", Help: "Requests forwarded with a caller-supplied upstream token."},
	{ID: dnsgate.MetricZoneDenied, Name: "dnsgate_zone_denied_total", Help: "Requests for a zone outside the caller's allow-list."},
	{ID: dnsgate.MetricUpstreamFailure, Name: "dnsgate_upstream_failure_total", Help: "Zone lookups or credential checks the provider could not answer."},
}

// HistogramDefs lists every latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: dnsgate.MetricResolveLatency, Name: "dnsgate_resolve_latency_seconds", Help: "Authorization resolver latency."},
}

// HistogramBounds are the upper bounds of the histogram buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable inside
// instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into the running totals that
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
