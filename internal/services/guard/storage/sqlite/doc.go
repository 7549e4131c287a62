// Package sqlite persists guard entries in a single SQLite file.
//
// Each logical key is one row named namespace_key, so the file mirrors the
// browser storage layout the PWA used and can host several namespaces.
package sqlite
