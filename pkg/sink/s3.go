package sink

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsV2Config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 streams dump files to an S3-compatible bucket, grounded on
// pkg/storage/s3.go's Connect/PutFile pair. Unlike the teacher, Create
// returns a live io.WriteCloser immediately via io.Pipe — the dumper writes
// chunk rows as they're produced rather than uploading a finished local file,
// so PutObject runs concurrently with row streaming in a background goroutine.
type S3 struct {
	client   *s3.Client
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
}

func NewS3(ctx context.Context, u *url.URL) (*S3, error) {
	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("invalid config: s3 URL %q is missing a bucket", u.String())
	}
	awsConfig, err := awsV2Config.LoadDefaultConfig(ctx, awsV2Config.WithRetryMode(aws.RetryModeStandard))
	if err != nil {
		return nil, err
	}
	if region := u.Query().Get("region"); region != "" {
		awsConfig.Region = region
	}
	if accessKey, secretKey := u.Query().Get("access_key"), u.Query().Get("secret_key"); accessKey != "" && secretKey != "" {
		awsConfig.Credentials = credentials.StaticCredentialsProvider{
			Value: aws.Credentials{AccessKeyID: accessKey, SecretAccessKey: secretKey},
		}
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if endpoint := u.Query().Get("endpoint"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if u.Query().Get("path_style") == "true" {
			o.UsePathStyle = true
		}
	})
	return &S3{
		client:   client,
		bucket:   bucket,
		prefix:   strings.TrimPrefix(u.Path, "/"),
		uploader: s3manager.NewUploader(client),
	}, nil
}

func (s *S3) Kind() string { return "s3" }

func (s *S3) objectKey(key string) string {
	return path.Join(s.prefix, key+dumpingSuffix)
}

func (s *S3) Create(ctx context.Context, key string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
			Body:   pr,
		})
		_ = pr.CloseWithError(err)
		done <- err
	}()
	return &pipeUploader{pw: pw, done: done}, nil
}

// pipeUploader adapts an io.Pipe writer plus an in-flight upload goroutine
// into a single io.WriteCloser: Close blocks until the upload finishes so
// the Writer's Close()/rename sequencing stays correct.
type pipeUploader struct {
	pw   *io.PipeWriter
	done chan error
}

func (p *pipeUploader) Write(b []byte) (int, error) { return p.pw.Write(b) }

func (p *pipeUploader) Close() error {
	if err := p.pw.Close(); err != nil {
		return err
	}
	return <-p.done
}

func (s *S3) Finalize(ctx context.Context, key string) error {
	src := s.objectKey(key)
	dst := path.Join(s.prefix, key)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(path.Join(s.bucket, src)),
	})
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(src)})
	return err
}

func (s *S3) Abandon(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.objectKey(key))})
	return err
}

func (s *S3) Close(context.Context) error { return nil }
