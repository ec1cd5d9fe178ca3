// Package bserve runs a bssr server: it builds the middleware stack from an entry, serves the static
// client assets and renders everything the stack declines.
//
// # Overview
//
// bserve takes care of the boilerplate around [bssr.Bridge]: environment parsing, structured
// logging, OpenTelemetry tracing, prometheus metrics, AWS SDK clients, stack (re)loading and
// graceful shutdown. A complete server is created in a single call:
//
//	bserve.NewApp[bserve.BaseEnvironment](
//	    bserve.WithEntry("app", func(s *bssr.Stack) error {
//	        s.Use(auth)
//	        s.HandleFunc("GET /api/items/{id}", getItem, "get-item")
//	        return nil
//	    }),
//	).Run()
//
// # Environment Configuration
//
// Define your environment by embedding [BaseEnvironment]:
//
//	type Env struct {
//	    bserve.BaseEnvironment
//	    MainTableName string `env:"MAIN_TABLE_NAME,required"`
//	}
//
// BaseEnvironment reads the following environment variables:
//
//	| Variable             | Required | Default  | Description                                        |
//	|----------------------|----------|----------|----------------------------------------------------|
//	| BSSR_ENTRY           | Yes      | -        | Registered entry name, plugin file or directory    |
//	| PORT                 | No       | 8080     | Port the HTTP server listens on                    |
//	| BSSR_CLIENT_RELATIVE | No       | -        | Directory with the client build output             |
//	| BSSR_ASSETS_PREFIX   | No       | /assets/ | URL prefix (and directory) of the static assets    |
//	| BSSR_ASSETS_BUCKET   | No       | -        | S3 bucket, optionally "bucket/prefix", for assets  |
//	| BSSR_SERVICE_NAME    | No       | bssr     | Service name for logging and tracing               |
//	| BSSR_LOG_LEVEL       | No       | info     | Log level (debug, info, warn, error)               |
//	| BSSR_OTEL_EXPORTER   | No       | stdout   | Trace exporter: "stdout", "xrayudp" or "none"      |
//	| BSSR_RENDERER_URL    | No       | -        | Base URL of an upstream renderer                   |
//	| BSSR_WATCH           | No       | -        | Comma separated paths that trigger a stack rebuild |
//	| BSSR_BUFFER_LIMIT    | No       | -1       | Max buffered response size, -1 is unlimited        |
//	| BSSR_WRITE_TIMEOUT   | No       | 30s      | Server write timeout, 0 disables all timeouts      |
//	| BSSR_HEALTH_PATH     | No       | /healthz | Health check endpoint                              |
//	| BSSR_METRICS_PATH    | No       | /metrics | Prometheus endpoint, empty disables it             |
//	| AWS_REGION           | No       | -        | Region for AWS clients                             |
//
// # Entries
//
// BSSR_ENTRY is resolved into a setup function that configures a fresh [bssr.Stack]. Names are looked
// up in the app's registry (see [WithEntry]) and then in [entries.Default]. Paths ending in ".so", and
// directories, are loaded as Go plugins that export a Setup function. Use [WithEntryLoader] to resolve
// entries differently.
//
// The stack is built once before the server starts listening, the app fails to start when that build
// fails. When BSSR_WATCH is set, the stack is rebuilt whenever a watched file changes. In-flight
// requests finish on the stack they started with, and a failed rebuild keeps the current stack.
//
// # Rendering
//
// Requests the stack declines are rendered by the [bssr.Renderer] provided with [WithRenderer], or
// by an [upstream.Renderer] for BSSR_RENDERER_URL. Without either they are answered with a plain 404.
//
// # Runtime
//
// [Runtime] provides access to app-scoped dependencies and should be injected via fx:
//
//   - [Runtime.Env] returns the typed environment configuration
//   - [Runtime.Reverse] generates URLs for named routes of the current stack
//   - [Runtime.Secret] retrieves secrets from AWS Secrets Manager
//   - [Runtime.NewRequest] starts an instrumented outbound request
//   - [Runtime.Reload] rebuilds the stack
//
// # Context
//
// Handlers receive a standard context.Context. Use the package-level functions to access
// request-scoped values:
//
//   - [Log] - trace-correlated zap logger, with the request id
//   - [RequestID] - the id from the X-Request-Id header, or a generated one
//   - [Span] - current OpenTelemetry span for custom instrumentation
//
// The request id is also stored in the request's locals under [LocalRequestID], so the renderer
// receives it as well.
//
// # Metrics
//
// Dispatch outcomes, the time spent in the stack, and stack builds are exported in the prometheus
// format at BSSR_METRICS_PATH. Each app uses its own registry.
//
// # Testing
//
// For integration tests that need the full DI graph, use [bservetest.New]:
//
//	bservetest.SetBaseEnv(t, 18081).Entry("app")
//	app := bservetest.New[bserve.BaseEnvironment](t, bserve.WithEntry("app", setup))
//	app.RequireStart()
//	t.Cleanup(app.RequireStop)
package bserve
