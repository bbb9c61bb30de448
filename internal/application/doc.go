// Package application provides application initialization and dependency wiring.
// It builds the tenant resolver, the settings loader with its optional
// watched cache, the dispatcher, handlers, routers and the HTTP server,
// keeping the main package focused on CLI parsing and orchestration.
package application
