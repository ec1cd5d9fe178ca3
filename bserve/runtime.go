package bserve

import (
	"context"
	"net/http"

	"github.com/advdv/bssr"
	"github.com/carlmjohnson/requests"
	"github.com/cockroachdb/errors"
)

// Runtime provides access to app-scoped dependencies. Inject it into the constructors of the
// types that register middleware and routes, instead of pulling them from the context.
//
// Example:
//
//	entries.Register("app", func(s *bssr.Stack) error {
//	    s.HandleFunc("GET /api/session", h.Session, "session")
//	    return nil
//	})
//
//	func (h *Handlers) Session(ctx context.Context, w bssr.ResponseWriter, r *http.Request) error {
//	    key, err := h.rt.Secret(ctx, "session-keys#current")
//	    // ...
//	}
type Runtime[E Environment] struct {
	env          E
	stacks       *bssr.Stacks
	secretReader SecretReader
	transport    http.RoundTripper
}

// RuntimeParams holds optional dependencies for Runtime.
type RuntimeParams struct {
	SecretReader SecretReader
	Transport    http.RoundTripper
}

// NewRuntime creates a new Runtime with the given dependencies.
func NewRuntime[E Environment](env E, stacks *bssr.Stacks, params RuntimeParams) *Runtime[E] {
	transport := params.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Runtime[E]{
		env:          env,
		stacks:       stacks,
		secretReader: params.SecretReader,
		transport:    transport,
	}
}

// Env returns the environment configuration.
func (r *Runtime[E]) Env() E {
	return r.env
}

// Reverse returns the URL for a named route of the current stack.
func (r *Runtime[E]) Reverse(name string, params ...string) (string, error) {
	stack := r.stacks.Current()
	if stack == nil {
		return "", errors.New("bserve: no stack has been built yet")
	}

	return stack.Reverse(name, params...)
}

// Secret retrieves a secret from AWS Secrets Manager. The reference is the secret name or ARN,
// optionally followed by '#' and a gjson path into the secret's JSON value, e.g.
// "db-credentials#password". Secrets are cached but read per call, so rotation needs no restart.
func (r *Runtime[E]) Secret(ctx context.Context, ref string) (string, error) {
	if r.secretReader == nil {
		return "", errors.New("bserve: secret reader not configured")
	}

	return readSecret(ctx, r.secretReader, ref)
}

// NewRequest returns a request builder that uses the instrumented transport.
func (r *Runtime[E]) NewRequest() *requests.Builder {
	return newRequestBuilder(r.transport)
}

// Reload rebuilds the middleware stack from the entry. A failed build keeps the current stack.
func (r *Runtime[E]) Reload(ctx context.Context) error {
	_, err := r.stacks.Build(ctx)
	return err
}
