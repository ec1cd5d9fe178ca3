package assets_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/advdv/bssr/assets"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var next = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
	_, _ = io.WriteString(w, "next")
})

func TestHandlerDir(t *testing.T) {
	fsys := fstest.MapFS{
		"app.1a2b.js":          {Data: []byte("console.log(1)"), ModTime: time.Unix(1700000000, 0)},
		"chunks/page.3c4d.css": {Data: []byte("body{}")},
	}

	h := assets.Handler("/assets", assets.NewFS(fsys), zap.NewNop(), next)

	for _, tt := range []struct {
		name     string
		method   string
		path     string
		expCode  int
		expBody  string
		expCache bool
	}{
		{"file", http.MethodGet, "/assets/app.1a2b.js", http.StatusOK, "console.log(1)", true},
		{"nested", http.MethodGet, "/assets/chunks/page.3c4d.css", http.StatusOK, "body{}", true},
		{"head", http.MethodHead, "/assets/app.1a2b.js", http.StatusOK, "", true},
		{"missing", http.MethodGet, "/assets/nope.js", http.StatusTeapot, "next", false},
		{"directory", http.MethodGet, "/assets/chunks", http.StatusTeapot, "next", false},
		{"prefix only", http.MethodGet, "/assets/", http.StatusTeapot, "next", false},
		{"outside prefix", http.MethodGet, "/app.1a2b.js", http.StatusTeapot, "next", false},
		{"escaping", http.MethodGet, "/assets/../../app.1a2b.js", http.StatusTeapot, "next", false},
		{"post", http.MethodPost, "/assets/app.1a2b.js", http.StatusTeapot, "next", false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.expCode, rec.Code)
			assert.Equal(t, tt.expBody, rec.Body.String())

			if tt.expCache {
				assert.Equal(t, assets.CacheControl, rec.Header().Get("Cache-Control"))
			} else {
				assert.Empty(t, rec.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestNewDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir+"/logo.svg", "<svg/>"))

	rec := httptest.NewRecorder()
	assets.Handler("/assets/", assets.NewDir(dir), zap.NewNop(), next).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/logo.svg", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
}

type fakeBucket struct {
	objects map[string]string
	err     error
	lastIn  *s3.GetObjectInput
}

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.lastIn = in
	if f.err != nil {
		return nil, f.err
	}

	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ETag:          aws.String(`"etag-1"`),
	}, nil
}

func TestHandlerBucket(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]string{"client/assets/app.js": "js"}}
	h := assets.Handler("/assets/", assets.NewBucket(bucket, "site", "client/assets"), zap.NewNop(), next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "js", rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get("Content-Length"))
	assert.Equal(t, `"etag-1"`, rec.Header().Get("ETag"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Equal(t, assets.CacheControl, rec.Header().Get("Cache-Control"))
	assert.Equal(t, "site", aws.ToString(bucket.lastIn.Bucket))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/other.js", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHandlerBucketFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bucket := &fakeBucket{err: errors.New("access denied")}

	rec := httptest.NewRecorder()
	assets.Handler("/assets/", assets.NewBucket(bucket, "site", ""), zap.New(core), next).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))

	require.Equal(t, 1, logs.FilterMessage("failed to serve asset").Len())
	assert.Equal(t, "app.js", logs.All()[0].ContextMap()["name"])
}
