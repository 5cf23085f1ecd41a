// Package session exposes authentication predicates and the login/logout transitions over
// a shared [credential.Store].
//
// # Architecture boundaries
//
// The [Service] is the only writer of the credential store. It reads the store on every
// call; caching for UI consumers is the job of the state package.
//
// # What this package must NOT do
//
//   - Surface backend failures from predicates. A failed read is logged and treated as
//     logged out.
//   - Write a partial credential on login. Token and profile are saved in one call.
package session
