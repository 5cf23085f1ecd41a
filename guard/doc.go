// Package guard decides whether a navigation may proceed given the current session.
//
// A [Guard] reads credentials from any [Source] (the session service reads the store, the
// reactive state reads its cache) and returns a [Decision]: allow, or redirect to a
// configured path. Guards never fail; missing or unreadable data is the logged-out
// default.
package guard
