// Package passkey runs the public-key challenge/response ceremonies used as a
// second login method.
//
// Challenges are single use: they are stored at PASSKEY_CHALLENGE:{challenge}
// bound to a ceremony (registration or authentication) and, when known, a
// username, and are consumed with one GETDEL. Authentication without a
// username is discoverable: the user is recovered from the challenge record
// or the assertion's user handle.
//
// Signature and origin checks are delegated to go-webauthn. The signature
// counter rule is stricter than the library's: an assertion must report a
// counter strictly greater than the stored one or it is rejected as a replay.
package passkey
