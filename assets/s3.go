package assets

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cockroachdb/errors"
)

// ObjectGetter is the part of the S3 client the bucket source needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Bucket serves assets from objects in an S3 bucket, below an optional key prefix.
type Bucket struct {
	client    ObjectGetter
	bucket    string
	keyPrefix string
}

// NewBucket inits the bucket source.
func NewBucket(client ObjectGetter, bucket, keyPrefix string) *Bucket {
	return &Bucket{client: client, bucket: bucket, keyPrefix: keyPrefix}
}

// ServeAsset implements [Source].
func (b *Bucket) ServeAsset(ctx context.Context, w http.ResponseWriter, r *http.Request, name string) error {
	in := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path.Join(b.keyPrefix, name)),
	}

	if inm := r.Header.Get("If-None-Match"); inm != "" {
		in.IfNoneMatch = aws.String(inm)
	}

	out, err := b.client.GetObject(ctx, in)
	if err != nil {
		if nsk := (*types.NoSuchKey)(nil); errors.As(err, &nsk) {
			return ErrNotFound
		}

		if isNotModified(err) {
			w.WriteHeader(http.StatusNotModified)
			return nil
		}

		return errors.Wrapf(err, "failed to get object %q", aws.ToString(in.Key))
	}

	defer out.Body.Close()

	hdr := w.Header()

	ctype := aws.ToString(out.ContentType)
	if ctype == "" || ctype == "binary/octet-stream" {
		ctype = mime.TypeByExtension(path.Ext(name))
	}

	if ctype != "" {
		hdr.Set("Content-Type", ctype)
	}

	if out.ContentLength != nil {
		hdr.Set("Content-Length", strconv.FormatInt(*out.ContentLength, 10))
	}

	if out.ETag != nil {
		hdr.Set("ETag", *out.ETag)
	}

	if out.LastModified != nil {
		hdr.Set("Last-Modified", out.LastModified.UTC().Format(http.TimeFormat))
	}

	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return nil
	}

	if _, err := io.Copy(w, out.Body); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to copy object %q", aws.ToString(in.Key)), ErrAborted)
	}

	return nil
}

// isNotModified reports whether S3 answered a conditional get with 304.
func isNotModified(err error) bool {
	var re interface{ HTTPStatusCode() int }

	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotModified
}

var (
	_ Source       = (*Bucket)(nil)
	_ ObjectGetter = (*s3.Client)(nil)
)
