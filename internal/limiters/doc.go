// Package limiters provides the per-username brute-force lockout tracker.
//
// # State machine
//
// Clear -> Counting -> Locked -> Clear. Every failed authentication
// increments a {count, lastAttempt} record at LOGIN_ATTEMPTS:{username}.
// Once count reaches the threshold, [Lockout.Check] rejects attempts until
// the cooldown has elapsed since the last failure, then deletes the record.
// A successful authentication deletes it immediately. Records expire after
// twice the cooldown.
//
// # What this package must NOT do
//
//   - Verify passwords. Check runs before the password is looked at.
//   - Import dnsgate or any sibling internal package.
package limiters
