// Package application provides application initialization and dependency wiring.
// It opens the recorder database, builds the statistics reporter, handlers,
// routers and HTTP server, keeping the main package focused on CLI parsing
// and orchestration.
package application
