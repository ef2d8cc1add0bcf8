// Package dbconn turns Home Assistant recorder connection strings into
// normalised connection descriptors and decides which connection string to
// use when several sources may provide one.
package dbconn
