// Package server provides HTTP routing, middleware and the static endpoints of the makin
// backend.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter]
// implements it on a chi mux. Middleware added with Use wraps the whole mux, so it also sees
// requests that match nothing.
//
// [BasicRouter.Mount] is how route modules attach. Mounting twice on one path does not
// replace the first handler: both go into a stack that tries them in mount order and moves on
// when one answers 404 or 405. Requests nothing answers get a JSON 404.
//
// # Static Endpoints
//
//   - GET /login redirects to the Spotify authorize page with a state nonce kept in the session
//   - GET /callback checks the state, exchanges the code and redirects to the frontend with
//     the tokens in the URL fragment
//   - GET /healthz reports whether every route and model module loaded
//   - GET /metrics exposes Prometheus metrics
//
// A failed token exchange answers 502 with the upstream error code and description in the
// JSON body.
//
// # Middleware
//
// [Server] installs, in order: request id, panic recovery, request logging, metrics, CORS,
// sessions and, when configured, a per-client rate limit on the API prefix.
package server
