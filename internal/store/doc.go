// Package store persists key/value pairs in an embedded SQLite database,
// transparently encrypting a fixed set of credential keys at rest.
package store
