package bservetest

import (
	"strconv"
	"strings"
	"testing"
)

// Env provides a chainable builder for setting [bserve.BaseEnvironment] env vars via t.Setenv.
// Create one with [SetBaseEnv].
type Env struct {
	t testing.TB
}

// SetBaseEnv sets the [bserve.BaseEnvironment] env vars to test defaults. Port is required because
// each test must use a unique port to avoid collisions.
//
// Defaults:
//   - BSSR_ENTRY: "app"
//   - BSSR_SERVICE_NAME: "test"
//   - BSSR_OTEL_EXPORTER: "none"
//   - BSSR_LOG_LEVEL: "warn"
//   - AWS_REGION: "us-east-1"
//   - AWS_ACCESS_KEY_ID: "test"
//   - AWS_SECRET_ACCESS_KEY: "test"
//
// Use the returned [Env] to override individual values:
//
//	bservetest.SetBaseEnv(t, 18085).Entry("admin").Watch(dir)
func SetBaseEnv(t testing.TB, port int) *Env {
	t.Helper()
	t.Setenv("PORT", strconv.Itoa(port))
	t.Setenv("BSSR_ENTRY", "app")
	t.Setenv("BSSR_SERVICE_NAME", "test")
	t.Setenv("BSSR_OTEL_EXPORTER", "none")
	t.Setenv("BSSR_LOG_LEVEL", "warn")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	return &Env{t: t}
}

// Entry overrides BSSR_ENTRY.
func (e *Env) Entry(entry string) *Env {
	e.t.Helper()
	e.t.Setenv("BSSR_ENTRY", entry)

	return e
}

// ServiceName overrides BSSR_SERVICE_NAME.
func (e *Env) ServiceName(name string) *Env {
	e.t.Helper()
	e.t.Setenv("BSSR_SERVICE_NAME", name)

	return e
}

// ClientRelative sets BSSR_CLIENT_RELATIVE.
func (e *Env) ClientRelative(dir string) *Env {
	e.t.Helper()
	e.t.Setenv("BSSR_CLIENT_RELATIVE", dir)

	return e
}

// RendererURL sets BSSR_RENDERER_URL.
func (e *Env) RendererURL(url string) *Env {
	e.t.Helper()
	e.t.Setenv("BSSR_RENDERER_URL", url)

	return e
}

// Watch sets BSSR_WATCH.
func (e *Env) Watch(paths ...string) *Env {
	e.t.Helper()
	e.t.Setenv("BSSR_WATCH", strings.Join(paths, ","))

	return e
}

// HealthPath overrides BSSR_HEALTH_PATH.
func (e *Env) HealthPath(path string) *Env {
	e.t.Helper()
	e.t.Setenv("BSSR_HEALTH_PATH", path)

	return e
}

// AWSRegion overrides AWS_REGION.
func (e *Env) AWSRegion(region string) *Env {
	e.t.Helper()
	e.t.Setenv("AWS_REGION", region)

	return e
}

// WriteTimeout overrides BSSR_WRITE_TIMEOUT.
func (e *Env) WriteTimeout(d string) *Env {
	e.t.Helper()
	e.t.Setenv("BSSR_WRITE_TIMEOUT", d)

	return e
}

// H2C sets BSSR_H2C.
func (e *Env) H2C() *Env {
	e.t.Helper()
	e.t.Setenv("BSSR_H2C", "true")

	return e
}
