package tenant

// Kind distinguishes how the dispatcher was invoked.
type Kind int

const (
	// KindCommandLine marks maintenance scripts and other CLI invocations.
	KindCommandLine Kind = iota + 1
	// KindWeb marks HTTP requests.
	KindWeb
)

func (k Kind) String() string {
	switch k {
	case KindCommandLine:
		return "cli"
	case KindWeb:
		return "web"
	default:
		return "unknown"
	}
}

// ExecutionContext is either a CommandLineInvocation or a WebRequest.
type ExecutionContext interface {
	Kind() Kind
}

// CommandLineInvocation carries the database name handed to a maintenance script.
type CommandLineInvocation struct {
	DatabaseName string
}

// Kind implements ExecutionContext.
func (CommandLineInvocation) Kind() Kind { return KindCommandLine }

// WebRequest carries the server name of an HTTP request. An empty ServerName
// means the server did not provide one.
type WebRequest struct {
	ServerName string
}

// Kind implements ExecutionContext.
func (WebRequest) Kind() Kind { return KindWeb }

// Resolution is the outcome of mapping an execution context to a tenant.
type Resolution struct {
	Kind   Kind
	Tenant string
	// Dir is the tenant's directory under the web root.
	Dir string
	// Path is the tenant's settings file.
	Path string
}

// Resolver describes the behaviour required from a tenant resolver.
type Resolver interface {
	Resolve(ec ExecutionContext) (Resolution, error)
}
