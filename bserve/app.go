package bserve

import (
	"context"
	"net/http"

	"github.com/advdv/bssr"
	"github.com/advdv/bssr/entries"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/cockroachdb/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App wraps an fx.App for lifecycle management.
type App struct {
	app *fx.App
}

// AppConfig holds configuration for the app.
type AppConfig struct {
	ServerConfig
	EntryLoader bssr.EntryLoader
	FxOptions   []fx.Option
}

// Option configures the App.
type Option func(*AppConfig)

// runtimeProviderParams holds dependencies for Runtime.
type runtimeProviderParams[E Environment] struct {
	fx.In

	Env          E
	Stacks       *bssr.Stacks
	SecretReader SecretReader
	Transport    http.RoundTripper
}

// WithAWSClient registers an AWS SDK v2 client for dependency injection. Clients target the local
// region (AWS_REGION) by default:
//
//	bserve.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
//	    return dynamodb.NewFromConfig(cfg)
//	})
//
// For a fixed region, wrap with InRegion[T] and use ForRegion():
//
//	bserve.WithAWSClient(func(cfg aws.Config) *bserve.InRegion[sqs.Client] {
//	    return bserve.NewInRegion(sqs.NewFromConfig(cfg), "eu-west-1")
//	}, bserve.ForRegion("eu-west-1"))
func WithAWSClient[T any](factory func(aws.Config) T, opts ...ClientOption) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, AWSClientProvider(factory, opts...))
	}
}

// WithFx adds fx options for dependency injection.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fxOpts...)
	}
}

// WithHealthHandler sets a custom health check handler.
// If not set, a default handler returning 200 OK is used.
func WithHealthHandler(h func(http.ResponseWriter, *http.Request)) Option {
	return func(c *AppConfig) {
		c.HealthHandler = h
	}
}

// WithRenderer provides the renderer for declined requests. It takes precedence over
// BSSR_RENDERER_URL.
func WithRenderer(r bssr.Renderer) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fx.Provide(func() bssr.Renderer { return r }))
	}
}

// WithEntry registers a setup function under name in the app's entry registry.
func WithEntry(name string, setup bssr.SetupFunc) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fx.Invoke(func(reg *entries.Registry) {
			reg.Register(name, setup)
		}))
	}
}

// WithEntryLoader replaces how BSSR_ENTRY is resolved into a setup function.
func WithEntryLoader(l bssr.EntryLoader) Option {
	return func(c *AppConfig) {
		c.EntryLoader = l
	}
}

// newEntryLoader resolves entries from the app's registry first, then from the default registry.
// Plugin paths are loaded from disk.
func newEntryLoader(cfg AppConfig, reg *entries.Registry) bssr.EntryLoader {
	if cfg.EntryLoader != nil {
		return cfg.EntryLoader
	}

	app, global := entries.Loader(reg), entries.Loader(entries.Default())

	return bssr.EntryLoaderFunc(func(ctx context.Context, entry string) (bssr.SetupFunc, error) {
		setup, err := app.LoadEntry(ctx, entry)
		if errors.Is(err, entries.ErrUnknownEntry) {
			return global.LoadEntry(ctx, entry)
		}

		return setup, err
	})
}

// FxOptions returns the fx options that make up the app's dependency graph.
func FxOptions[E Environment](opts ...Option) []fx.Option {
	var cfg AppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	baseOpts := make([]fx.Option, 0, 18+len(cfg.FxOptions))
	baseOpts = append(baseOpts, []fx.Option{
		fx.NopLogger,
		fx.Provide(ParseEnv[E]()),
		fx.Provide(func(e E) Environment { return e }),
		fx.Provide(func(e E) (*zap.Logger, error) { return NewLogger(e) }),
		fx.Provide(NewTracerProvider),
		fx.Provide(NewPropagator),
		fx.Provide(provideAWSConfig),
		fx.Provide(func(cfg aws.Config) (SecretReader, error) {
			return NewCachedSecretReader(cfg)
		}),
		fx.Provide(NewHTTPTransport),
		fx.Provide(NewHTTPClient),
		fx.Provide(NewMetrics),
		fx.Provide(entries.NewRegistry),
		fx.Supply(cfg),
		fx.Supply(cfg.ServerConfig),
		fx.Provide(newEntryLoader),
		fx.Provide(NewStacks),
		fx.Provide(NewServer),
		fx.Provide(func(p runtimeProviderParams[E]) *Runtime[E] {
			return NewRuntime(p.Env, p.Stacks, RuntimeParams{SecretReader: p.SecretReader, Transport: p.Transport})
		}),
	}...)

	baseOpts = append(baseOpts, cfg.FxOptions...)

	return append(baseOpts,
		fx.Invoke(startServerHook),
		fx.Invoke(startReloaderHook),
	)
}

// NewApp creates a batteries-included server that builds its middleware stack from BSSR_ENTRY and
// renders everything the stack declines.
//
// Example:
//
//	bserve.NewApp[Env](
//	    bserve.WithEntry("app", func(s *bssr.Stack) error {
//	        s.HandleFunc("GET /api/items", listItems)
//	        return nil
//	    }),
//	    bserve.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
//	        return dynamodb.NewFromConfig(cfg)
//	    }),
//	).Run()
func NewApp[E Environment](opts ...Option) *App {
	return &App{
		app: fx.New(FxOptions[E](opts...)...),
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() {
	a.app.Run()
}

// Start starts the application and blocks until ctx is done, then stops it.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}

// Err returns an error when the dependency graph could not be constructed.
func (a *App) Err() error {
	return a.app.Err()
}
