// Package routes mounts route modules under the API prefix.
//
// A route module is a file in the routes directory. Its slug (the filename up to the first
// ".") picks the mount path: tracks.toml mounts at <prefix>/tracks and index.toml mounts at
// <prefix> itself. Each endpoint binds a method and a sub-path to a named action:
//
//	description = "Saved tracks"
//
//	[[endpoints]]
//	action = "list"
//	model = "track"
//
//	[[endpoints]]
//	method = "GET"
//	path = "/ping"
//	action = "respond"
//	body = { ok = true }
//
// Actions come from an [Actions] manifest compiled into the binary. The built-in actions are
// respond, list, get, create, update, delete and models; applications add their own with
// [Actions.Register].
//
// Two modules with the same slug (foo.toml and foo.yaml) mount on the same path. The host
// router keeps both and tries them in load order.
package routes
