package sink

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// GCS streams dump files to Google Cloud Storage, grounded on
// pkg/storage/gcs.go's object.NewWriter()-based PutFileAbsolute. Unlike the
// S3 sink, the GCS client library already exposes a resumable
// io.WriteCloser per object, so no io.Pipe adaptor is needed.
type GCS struct {
	client *gcs.Client
	bucket string
	prefix string
}

func NewGCS(ctx context.Context, u *url.URL) (*GCS, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("invalid config: gs URL %q is missing a bucket", u.String())
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCS{client: client, bucket: u.Host, prefix: strings.TrimPrefix(u.Path, "/")}, nil
}

func (g *GCS) Kind() string { return "gcs" }

func (g *GCS) objectKey(key string) string { return path.Join(g.prefix, key+dumpingSuffix) }

func (g *GCS) Create(ctx context.Context, key string) (io.WriteCloser, error) {
	return g.client.Bucket(g.bucket).Object(g.objectKey(key)).NewWriter(ctx), nil
}

func (g *GCS) Finalize(ctx context.Context, key string) error {
	srcObj := g.client.Bucket(g.bucket).Object(g.objectKey(key))
	dstObj := g.client.Bucket(g.bucket).Object(path.Join(g.prefix, key))
	if _, err := dstObj.CopierFrom(srcObj).Run(ctx); err != nil {
		return err
	}
	return srcObj.Delete(ctx)
}

func (g *GCS) Abandon(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(g.objectKey(key)).Delete(ctx)
	if err == gcs.ErrObjectNotExist {
		return nil
	}
	return err
}

func (g *GCS) Close(context.Context) error { return g.client.Close() }
