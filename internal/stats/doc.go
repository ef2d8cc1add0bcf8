// Package stats shapes recorder query results into the chart payloads and
// informational alerts served by the API.
package stats
