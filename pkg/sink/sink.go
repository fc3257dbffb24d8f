// Package sink implements the pluggable output destinations a Writer can
// target, chosen from a job's output URL scheme.
package sink

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Sink is the contract a Writer drives: one WriteCloser per produced file,
// created under a ".dumping" suffix and committed atomically on success.
type Sink interface {
	Kind() string
	// Create opens a new write stream for key, physically named key+".dumping".
	Create(ctx context.Context, key string) (io.WriteCloser, error)
	// Finalize commits key+".dumping" as key. The local sink returns nil if
	// key is already final; the remote sinks do not check for that case.
	Finalize(ctx context.Context, key string) error
	// Abandon removes a ".dumping" file that will never be finalized (cancellation cleanup).
	Abandon(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

const dumpingSuffix = ".dumping"

// New parses an output URL (or bare local path) and returns the matching Sink.
// Scheme selection mirrors pkg/storage/general.go's backend dispatch in the
// teacher repo, generalized from "whole backup archive" destinations to
// "one file per dump chunk" destinations.
func New(ctx context.Context, outputURL string) (Sink, error) {
	if outputURL == "" {
		return nil, fmt.Errorf("invalid config: empty output URL")
	}
	u, err := url.Parse(outputURL)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// len==1 guards against Windows drive letters like "C:\..." being parsed as a scheme.
		return NewLocal(outputURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return NewLocal(u.Path)
	case "s3":
		return NewS3(ctx, u)
	case "gs", "gcs":
		return NewGCS(ctx, u)
	case "azblob", "az":
		return NewAzureBlob(ctx, u)
	case "cos":
		return NewCOS(ctx, u)
	case "ftp":
		return NewFTP(ctx, u)
	case "sftp":
		return NewSFTP(ctx, u)
	default:
		return nil, fmt.Errorf("invalid config: unsupported output URL scheme %q", u.Scheme)
	}
}
