package sink

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureBlob streams dump files to Azure Blob Storage, grounded on
// pkg/storage/azblob.go's Connect()/PutFileAbsolute(), which drives the
// same azblob.UploadStreamToBlockBlob helper used here. Credentials come
// from the AZURE_STORAGE_ACCOUNT/AZURE_STORAGE_ACCESS_KEY environment
// variables, matching the teacher's account-key connection mode.
type AzureBlob struct {
	container azblob.ContainerURL
	prefix    string
}

func NewAzureBlob(ctx context.Context, u *url.URL) (*AzureBlob, error) {
	container := u.Host
	if container == "" {
		return nil, fmt.Errorf("invalid config: azblob URL %q is missing a container", u.String())
	}
	accountName := os.Getenv("AZURE_STORAGE_ACCOUNT")
	accountKey := os.Getenv("AZURE_STORAGE_ACCESS_KEY")
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("invalid config: AZURE_STORAGE_ACCOUNT/AZURE_STORAGE_ACCESS_KEY must be set for azblob output")
	}
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}
	p := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	endpointSuffix := u.Query().Get("endpoint_suffix")
	if endpointSuffix == "" {
		endpointSuffix = "core.windows.net"
	}
	serviceURL := azblob.NewServiceURL(
		mustParseURL(fmt.Sprintf("https://%s.blob.%s", accountName, endpointSuffix)), p)
	return &AzureBlob{
		container: serviceURL.NewContainerURL(container),
		prefix:    strings.TrimPrefix(u.Path, "/"),
	}, nil
}

func mustParseURL(raw string) url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return *u
}

func (a *AzureBlob) Kind() string { return "azblob" }

func (a *AzureBlob) blobKey(key string) string { return path.Join(a.prefix, key+dumpingSuffix) }

func (a *AzureBlob) Create(ctx context.Context, key string) (io.WriteCloser, error) {
	blob := a.container.NewBlockBlobURL(a.blobKey(key))
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := azblob.UploadStreamToBlockBlob(ctx, pr, blob, azblob.UploadStreamToBlockBlobOptions{
			BufferSize: 4 * 1024 * 1024,
			MaxBuffers: 4,
		})
		_ = pr.CloseWithError(err)
		done <- err
	}()
	return &pipeUploader{pw: pw, done: done}, nil
}

func (a *AzureBlob) Finalize(ctx context.Context, key string) error {
	src := a.container.NewBlockBlobURL(a.blobKey(key))
	dst := a.container.NewBlockBlobURL(path.Join(a.prefix, key))
	resp, err := dst.StartCopyFromURL(ctx, src.URL(), nil, azblob.ModifiedAccessConditions{}, azblob.BlobAccessConditions{}, azblob.DefaultAccessTier, nil)
	if err != nil {
		return err
	}
	_ = resp
	_, err = src.Delete(ctx, azblob.DeleteSnapshotsOptionNone, azblob.BlobAccessConditions{})
	return err
}

func (a *AzureBlob) Abandon(ctx context.Context, key string) error {
	_, err := a.container.NewBlockBlobURL(a.blobKey(key)).Delete(ctx, azblob.DeleteSnapshotsOptionNone, azblob.BlobAccessConditions{})
	if stgErr, ok := err.(azblob.StorageError); ok && stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
		return nil
	}
	return err
}

func (a *AzureBlob) Close(context.Context) error { return nil }
