package bserve

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/advdv/bssr"
	"github.com/advdv/bssr/assets"
	"github.com/advdv/bssr/render/upstream"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ServerConfig holds optional configuration for the HTTP server.
type ServerConfig struct {
	HealthHandler func(http.ResponseWriter, *http.Request)
}

// StacksParams holds the dependencies for building middleware stacks.
type StacksParams struct {
	fx.In

	Env    Environment
	Loader bssr.EntryLoader
	Logger *zap.Logger
}

// NewStacks creates the stacks for the configured entry. Every stack is created with the request
// dependencies already in use, before the entry's setup runs.
func NewStacks(params StacksParams) *bssr.Stacks {
	env, blogs := params.Env, NewBSSRLogger(params.Logger)

	return bssr.NewStacks(env.entry(), params.Loader,
		bssr.WithStacksLogger(blogs),
		bssr.WithStackFactory(func() *bssr.Stack {
			stack := bssr.NewStackWith(env.bufferLimit(), blogs, http.NewServeMux(), bssr.NewReverser())
			stack.Use(withRequestDep(params.Logger))

			return stack
		}))
}

// ServerParams holds the dependencies for creating an HTTP server.
type ServerParams struct {
	fx.In

	Env        Environment
	Stacks     *bssr.Stacks
	Logger     *zap.Logger
	Metrics    *Metrics
	AWSConfig  aws.Config
	Transport  http.RoundTripper
	TracerProv trace.TracerProvider
	Propagator propagation.TextMapPropagator
	Renderer   bssr.Renderer `optional:"true"`
}

// NewServer creates the HTTP server. Requests are served in this order: the health and metrics
// endpoints, the static assets, and then the bridge that runs the middleware stack and falls back to
// the renderer.
func NewServer(params ServerParams, cfg ServerConfig) (*http.Server, error) {
	env, blogs := params.Env, NewBSSRLogger(params.Logger)

	fallback, err := newFallback(params, blogs)
	if err != nil {
		return nil, err
	}

	observe := params.Metrics.Observer()
	tc := TimeoutConfig{WriteTimeout: env.writeTimeout()}
	bridge := bssr.NewBridge(params.Stacks, fallback,
		bssr.WithBufferLimit(env.bufferLimit()),
		bssr.WithRequestTimeout(tc.RequestTimeout()),
		bssr.WithObserver(func(r *http.Request, o bssr.Outcome) {
			observe(r, o)
			traceOutcome(r, o)
		}),
		bssr.WithLogger(blogs))

	healthHandler := cfg.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}

	excluded := []string{env.healthPath()}

	mux := http.NewServeMux()
	mux.HandleFunc(env.healthPath(), healthHandler)

	if metricsPath := env.metricsPath(); metricsPath != "" {
		mux.Handle(metricsPath, params.Metrics.Handler())
		excluded = append(excluded, metricsPath)
	}

	mux.Handle("/", withRequestID(withStart(newAssets(params, bridge))))

	handler := withTracing(params.TracerProv, params.Propagator, env.serviceName(), excluded...)(mux)
	if env.h2c() {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	readHeaderTimeout, readTimeout, writeTimeout, idleTimeout := tc.ServerTimeouts()

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", env.port()),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}, nil
}

// newFallback returns the handler for declined requests. An injected renderer takes precedence over
// the upstream renderer configured with BSSR_RENDERER_URL. Without either, declined requests are
// answered with a plain 404.
func newFallback(params ServerParams, blogs bssr.Logger) (http.Handler, error) {
	renderer := params.Renderer
	if renderer == nil && params.Env.rendererURL() != "" {
		up, err := upstream.New(params.Env.rendererURL(), upstream.WithTransport(params.Transport))
		if err != nil {
			return nil, errors.Wrap(err, "failed to configure upstream renderer")
		}

		renderer = up
	}

	if renderer == nil {
		params.Logger.Warn("no renderer configured, declined requests are answered with 404")
		return http.NotFoundHandler(), nil
	}

	return bssr.NewFallback(renderer, blogs), nil
}

// newAssets serves the static assets from the S3 bucket when BSSR_ASSETS_BUCKET is set, or from the
// client build directory otherwise. The bucket value may include a key prefix: "bucket/some/prefix".
func newAssets(params ServerParams, next http.Handler) http.Handler {
	env := params.Env
	prefix := env.assetsPrefix()

	var src assets.Source

	switch {
	case env.assetsBucket() != "":
		bucket, keyPrefix, _ := strings.Cut(env.assetsBucket(), "/")
		src = assets.NewBucket(s3.NewFromConfig(params.AWSConfig), bucket,
			path.Join(keyPrefix, strings.Trim(prefix, "/")))
	case env.clientRelative() != "":
		src = assets.NewDir(filepath.Join(env.clientRelative(), filepath.FromSlash(prefix)))
	default:
		return next
	}

	return assets.Handler(prefix, src, params.Logger.Named("assets"), next)
}

// startServerHook registers lifecycle hooks for the HTTP server. The first stack is built before the
// server starts listening, the app fails to start when that build fails.
func startServerHook(lc fx.Lifecycle, server *http.Server, stacks *bssr.Stacks, metrics *Metrics, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_, err := stacks.Build(ctx)
			metrics.observeBuild(stacks.Generation(), err)

			if err != nil {
				return errors.Wrap(err, "failed to build initial stack")
			}

			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return errors.Wrapf(err, "failed to listen on %s", server.Addr)
			}

			logger.Info("starting server", zap.String("addr", server.Addr), zap.String("entry", stacks.Entry()))

			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			return server.Shutdown(ctx)
		},
	})
}

// startReloaderHook rebuilds the stack when the paths in BSSR_WATCH change.
func startReloaderHook(lc fx.Lifecycle, env Environment, stacks *bssr.Stacks, metrics *Metrics, logger *zap.Logger) {
	paths := env.watch()
	if len(paths) == 0 {
		return
	}

	rl := NewReloader(stacks, paths, logger, metrics)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return rl.Start() },
		OnStop:  func(context.Context) error { return rl.Stop() },
	})
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
