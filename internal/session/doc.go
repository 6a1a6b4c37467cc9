// Package session keeps per-browser state between requests.
//
// A [Manager] middleware reads the session cookie, loads the session from a [Store] and puts it
// on the request context. Handlers read and write values through [FromContext]. Sessions are
// only persisted, and the cookie only issued, when a handler modifies them.
//
// The cookie carries the session id inside an HS256-signed token so a forged or tampered id is
// treated as no session at all. Three stores are available: [MemoryStore] for a single
// instance, and [RedisStore] or [SQLStore] when several instances share sessions.
package session
