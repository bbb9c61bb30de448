// Package dispatch ties tenant resolution to settings loading. A Dispatcher
// checks the entry-point marker, resolves the execution context to a tenant,
// verifies the tenant directory exists, loads the settings file once and
// applies fleet-wide global settings on top.
package dispatch
