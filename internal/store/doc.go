// Package store is the SQL backend: it implements backend.Backend over
// database/sql for SQLite, PostgreSQL and MySQL.
//
// # Critical Patterns
//
// CP-1: Parameterized Statements
//   - Every statement comes from querysql; values are bound, never spliced
//
// CP-2: Deterministic Results
//   - Every row-returning query ends its ORDER BY with the primary key
//   - Single-record mutations act on the first matching key
//
// CP-3: Mutations Return Rows
//   - Update re-reads the changed rows by key
//   - Delete reads its snapshot before removing the rows
//
// # SQLite Configuration
//
// Every connection opened through the "sqlite" driver runs:
//   - journal_mode=WAL: concurrent reads during writes
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// and gets a regexp(pattern, value) function so REGEXP works.
package store
