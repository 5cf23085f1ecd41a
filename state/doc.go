// Package state keeps an in-memory, eventually consistent mirror of the credential store
// for UI consumers.
//
// A [State] caches the token, the profile and the derived authenticated flag as one
// immutable [Snapshot] swapped atomically on every refresh. It is refreshed explicitly
// after login and logout, on change notifications from other contexts, and by a
// comparison poll that catches writers bypassing the notification channel.
//
// [State.Watch] returns a single [Teardown] for the poll and the subscription; it blocks
// until both goroutines exited, so no refresh is triggered by storage changes afterwards.
package state
