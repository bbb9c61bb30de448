package dispatch

import (
	"os"

	"github.com/wikido/wikido-dispatch/internal/tenant"
)

const (
	// DefaultEntryMarker is defined by the wiki's entry points before the
	// dispatcher runs.
	DefaultEntryMarker = "MEDIAWIKI"
	// DefaultDatabaseVar names the database selected by maintenance scripts.
	DefaultDatabaseVar = "MW_DB"
	// DefaultServerNameVar is the CGI variable carrying the request host.
	DefaultServerNameVar = "SERVER_NAME"
)

// Environment exposes the variables defined by the host framework.
type Environment interface {
	Lookup(key string) (string, bool)
}

// EnvironmentFunc adapts a lookup function to Environment.
type EnvironmentFunc func(key string) (string, bool)

// Lookup implements Environment.
func (f EnvironmentFunc) Lookup(key string) (string, bool) { return f(key) }

// OSEnvironment reads the process environment.
var OSEnvironment Environment = EnvironmentFunc(os.LookupEnv)

// MapEnvironment is a fixed set of variables.
type MapEnvironment map[string]string

// Lookup implements Environment.
func (m MapEnvironment) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// ContextFromEnvironment builds the execution context the way the wiki does:
// a defined database variable means a command-line invocation, even when its
// value is blank, and anything else is a web request described by the server
// name variable.
func ContextFromEnvironment(env Environment, databaseVar, serverNameVar string) tenant.ExecutionContext {
	if databaseVar == "" {
		databaseVar = DefaultDatabaseVar
	}
	if serverNameVar == "" {
		serverNameVar = DefaultServerNameVar
	}
	if db, ok := env.Lookup(databaseVar); ok {
		return tenant.CommandLineInvocation{DatabaseName: db}
	}
	server, _ := env.Lookup(serverNameVar)
	return tenant.WebRequest{ServerName: server}
}
