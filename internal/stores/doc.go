// Package stores provides the Redis-backed credential store: user records,
// per-user upstream-credential slots, the user list, TOTP secrets, passkey
// challenges and credentials, and the refresh-token revocation ledger.
//
// # Key layout
//
// Key formats are shared with existing deployments and must not change:
//
//	USER:{username}                 user record (JSON)
//	USER_TOKENS:{username}          upstream-credential slots (JSON array)
//	USER_LIST                       usernames (JSON array)
//	REVOKED_RT:{jti}                revocation marker, TTL = refresh lifetime
//	TOTP_SECRET:admin               active TOTP secret of the admin identity
//	TOTP_PENDING:{username}         unverified TOTP secret, short TTL
//	PASSKEY_CHALLENGE:{challenge}   single-use ceremony challenge, short TTL
//	PASSKEY_CREDS:{username}        registered passkeys (JSON array)
//
// # Consistency
//
// Every mutation is a plain read-modify-write without compare-and-swap.
// Concurrent writers to the same key can lose updates; callers accept this.
// Challenge consumption is the exception and uses GETDEL so that a
// challenge can be redeemed at most once.
//
// # What this package must NOT do
//
//   - Import dnsgate or any sibling internal package.
//   - Make authentication decisions.
//   - Log secrets, digests or credential values.
package stores
