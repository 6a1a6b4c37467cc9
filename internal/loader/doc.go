// Package loader discovers plugin modules in a directory and applies them one at a time.
//
// A module is a declarative file (TOML, YAML or JSON) whose decoded value is handed to an
// [ApplyFunc] together with its [Descriptor]. The routes package uses it to mount handler
// collections on a router and the models package uses it to register model definitions
// against a shared ORM connection.
//
// # Ordering
//
// Entries are sorted by filename before anything is decoded so registration order does
// not depend on the filesystem.
//
// # Failures
//
// Loading is best-effort: a file that fails to decode or apply is recorded in the
// [Report] and the scan moves on. [FailFast] stops at the first failure instead, leaving
// the failing file and every later file unregistered.
package loader
