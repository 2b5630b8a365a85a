// Package password implements salted PBKDF2-SHA256 digests and recognition of
// the legacy unsalted digest format.
//
// # Output format
//
// Digests are encoded as two lowercase hex fields joined by a colon:
//
//	<salt>:<derived key>
//
// A stored value with no separator that is exactly 64 hex characters is a
// legacy digest. The presented secret is itself a client-side SHA-256 digest,
// so a legacy record is compared directly. [Hasher.NeedsUpgrade] reports true
// for legacy records so the caller can re-hash after the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. It never writes storage;
// the login flow persists upgraded digests.
//
// # What this package must NOT do
//
//   - Store or retrieve digests.
//   - Import any other dnsgate package.
//   - Log presented secrets or derived keys.
package password
