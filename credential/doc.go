// Package credential provides the persisted key-value holder for the access token, the
// logged user profile and the auxiliary session markers.
//
// # Storage layout
//
// Four keys are owned by this package: ACCESS_TOKEN, LOGGED_USER (JSON-encoded
// [UserProfile]), REFRESH_TOKEN and SESSION_ID. Values are opaque strings. Writes of
// several keys and [Store.Clear] are applied as one atomic backend call.
//
// # Cross-context notifications
//
// Every write publishes one [Change] per key. A [Store] only surfaces changes that
// originated from another store handle, mirroring platform storage events that never
// fire in the writing context.
//
// # Architecture boundaries
//
// This package owns the [Store], the [Backend] implementations and the profile codec.
// It does NOT decide whether a user is authenticated or allowed to navigate; that
// belongs to the session and guard packages.
//
// # What this package must NOT do
//
//   - Import session, state, guard or the root package (no upward imports).
//   - Return decode errors for malformed profiles to callers; they are logged and
//     reported as an absent user.
package credential
