// Package db embeds the PostgreSQL schema of the store.
package db

import _ "embed"

// Schema creates users, products, orders and payments along with their
// constraints. Every statement is idempotent so it runs on each start.
//
//go:embed migrations/001_schema.sql
var Schema string
