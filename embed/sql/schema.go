package embedsql

import _ "embed"

// Schema is the full database schema, applied on init. Statements are
// idempotent so re-running migration on an existing database is safe.
//
//go:embed schema.sql
var Schema string
