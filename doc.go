// Package authstate keeps the authenticated session of a client application consistent
// across execution contexts that share one credential store.
//
// An [Engine] is one execution context (a browser tab, a worker, a process). It owns a
// credential store handle, the session service that mutates it, a reactive state that
// mirrors it, a route guard that reads the store on every navigation, and an API client that turns
// authorization failures into a forced logout.
//
// Engines are assembled with [Builder]:
//
//	engine, err := authstate.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithNavigator(nav).
//		Build()
//
// Engine methods are safe for concurrent use.
//
// # Package layout
//
//   - credential: storage keys, profile codec, Redis and in-memory backends
//   - session: login, logout and predicates over the store
//   - state: cached snapshot kept fresh by notifications and polling
//   - guard: route decisions
//   - transport: bearer-authenticated API client
//   - middleware: HTTP adapters for guards
package authstate
