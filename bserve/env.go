package bserve

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Environment defines the interface that all environment configurations must implement.
// Embed BaseEnvironment in your struct to satisfy this interface.
type Environment interface {
	entry() string
	port() int
	clientRelative() string
	assetsPrefix() string
	assetsBucket() string
	serviceName() string
	logLevel() zapcore.Level
	otelExporter() string
	rendererURL() string
	watch() []string
	bufferLimit() int
	writeTimeout() time.Duration
	healthPath() string
	metricsPath() string
	awsRegion() string
	h2c() bool
}

// BaseEnvironment contains the environment variables every server reads. Embed this in your custom
// environment struct.
type BaseEnvironment struct {
	// Entry references the setup function the middleware stack is built from: a registered name, a
	// plugin file or a directory with plugin files.
	Entry string `env:"BSSR_ENTRY,required"`
	Port  int    `env:"PORT" envDefault:"8080"`
	// ClientRelative is the directory with the client build output. Assets are served from the
	// AssetsPrefix directory inside of it.
	ClientRelative string        `env:"BSSR_CLIENT_RELATIVE"`
	AssetsPrefix   string        `env:"BSSR_ASSETS_PREFIX" envDefault:"/assets/"`
	AssetsBucket   string        `env:"BSSR_ASSETS_BUCKET"`
	ServiceName    string        `env:"BSSR_SERVICE_NAME" envDefault:"bssr"`
	LogLevel       zapcore.Level `env:"BSSR_LOG_LEVEL" envDefault:"info"`
	OtelExporter   string        `env:"BSSR_OTEL_EXPORTER" envDefault:"stdout"`
	RendererURL    string        `env:"BSSR_RENDERER_URL"`
	// Watch lists paths that trigger a rebuild of the middleware stack when they change.
	Watch        []string      `env:"BSSR_WATCH" envSeparator:","`
	BufferLimit  int           `env:"BSSR_BUFFER_LIMIT" envDefault:"-1"`
	WriteTimeout time.Duration `env:"BSSR_WRITE_TIMEOUT" envDefault:"30s"`
	HealthPath   string        `env:"BSSR_HEALTH_PATH" envDefault:"/healthz"`
	MetricsPath  string        `env:"BSSR_METRICS_PATH" envDefault:"/metrics"`
	AWSRegion    string        `env:"AWS_REGION"`
	// H2C serves HTTP/2 over cleartext connections, for deployments behind a proxy that terminates
	// TLS and speaks HTTP/2 to the server.
	H2C bool `env:"BSSR_H2C"`
}

func (e BaseEnvironment) entry() string               { return e.Entry }
func (e BaseEnvironment) port() int                   { return e.Port }
func (e BaseEnvironment) clientRelative() string      { return e.ClientRelative }
func (e BaseEnvironment) assetsPrefix() string        { return e.AssetsPrefix }
func (e BaseEnvironment) assetsBucket() string        { return e.AssetsBucket }
func (e BaseEnvironment) serviceName() string         { return e.ServiceName }
func (e BaseEnvironment) logLevel() zapcore.Level     { return e.LogLevel }
func (e BaseEnvironment) otelExporter() string        { return e.OtelExporter }
func (e BaseEnvironment) rendererURL() string         { return e.RendererURL }
func (e BaseEnvironment) watch() []string             { return e.Watch }
func (e BaseEnvironment) bufferLimit() int            { return e.BufferLimit }
func (e BaseEnvironment) writeTimeout() time.Duration { return e.WriteTimeout }
func (e BaseEnvironment) healthPath() string          { return e.HealthPath }
func (e BaseEnvironment) metricsPath() string         { return e.MetricsPath }
func (e BaseEnvironment) awsRegion() string           { return e.AWSRegion }
func (e BaseEnvironment) h2c() bool                   { return e.H2C }

var _ Environment = BaseEnvironment{}

// ParseEnv parses environment variables into the given Environment type.
func ParseEnv[E Environment]() func() (E, error) {
	return func() (e E, err error) {
		if err := env.Parse(&e); err != nil {
			return e, errors.Wrap(err, "failed to parse environment")
		}

		return e, nil
	}
}
