// Package config assembles the runtime configuration. Server settings come
// from CLI flags, an optional YAML file and environment variables, with
// precedence: CLI flags > YAML config > Environment variables > Defaults.
// The database connection is resolved once through the dbconn fallback
// chain, and every required field left unset is reported in one error.
package config
