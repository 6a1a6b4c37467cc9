// Package models registers model modules against the shared ORM connection.
//
// A model module is a file in the models directory (TOML, YAML or JSON) describing one
// persisted entity:
//
//	name = "track"
//	soft_delete = true
//
//	[[fields]]
//	name = "title"
//	type = "string"
//	required = true
//
// [Apply] decodes every file in filename order and calls [Definition.Register] with the same
// [orm.Conn], which creates the table when missing and records the model in the connection's
// registry. Route modules then reach the model through [orm.Conn.Repository].
//
// Registration is awaited: the server applies models before it mounts routes or listens.
package models
