// Package store persists license overrides and scan history in SQLite.
//
// The engine never reads the store. The CLI loads overrides from it before a
// scan and records each finished run afterwards.
package store
