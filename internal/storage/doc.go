// Package storage opens the Home Assistant recorder database described by a
// connection descriptor and runs the fixed, read-only statistics queries the
// dashboard charts are built from. SQLite, PostgreSQL and MySQL/MariaDB are
// supported through the go-sqlite3, pgx and go-sql-driver/mysql drivers.
package storage
