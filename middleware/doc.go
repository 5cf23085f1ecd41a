// Package middleware exposes HTTP adapters for route guards and bearer token checks.
//
// # Navigation
//
//   - [Navigation] runs guard.Guard.Check for every request path.
//   - [RequirePrivate] and [RequireRoles] pin a single guard to a subtree.
//
// Redirect decisions are answered with 303 See Other.
//
// # API
//
//   - [RequireBearer] reads the Authorization header, verifies the token with the
//     supplied function and injects the claims into the request context.
//
// This package translates HTTP semantics into guard calls. It does not read the
// credential store itself.
package middleware
