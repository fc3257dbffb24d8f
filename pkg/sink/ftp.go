package sink

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/jlaffaye/ftp"
	pool "github.com/jolestar/go-commons-pool/v2"
)

// FTP streams dump files over plain FTP, grounded on pkg/storage/ftp.go's
// connection-pooled Connect()/PutFileAbsolute(). The teacher pools
// *ftp.ServerConn via go-commons-pool so concurrent Workers don't each pay
// a fresh login round-trip; that pool is kept verbatim in shape here.
type FTP struct {
	pool   *pool.ObjectPool
	prefix string
}

type ftpFactory struct {
	addr, user, pass string
}

func (f *ftpFactory) MakeObject(ctx context.Context) (*pool.PooledObject, error) {
	c, err := ftp.Dial(f.addr, ftp.DialWithContext(ctx))
	if err != nil {
		return nil, err
	}
	if err := c.Login(f.user, f.pass); err != nil {
		return nil, err
	}
	return pool.NewPooledObject(c), nil
}
func (f *ftpFactory) DestroyObject(_ context.Context, o *pool.PooledObject) error {
	return o.Object.(*ftp.ServerConn).Quit()
}
func (f *ftpFactory) ValidateObject(context.Context, *pool.PooledObject) bool { return true }
func (f *ftpFactory) ActivateObject(context.Context, *pool.PooledObject) error { return nil }
func (f *ftpFactory) PassivateObject(context.Context, *pool.PooledObject) error { return nil }

func NewFTP(ctx context.Context, u *url.URL) (*FTP, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("invalid config: ftp URL %q is missing a host", u.String())
	}
	password, _ := u.User.Password()
	p := pool.NewObjectPoolWithDefaultConfig(ctx, &ftpFactory{addr: u.Host, user: u.User.Username(), pass: password})
	return &FTP{pool: p, prefix: strings.TrimPrefix(u.Path, "/")}, nil
}

func (f *FTP) Kind() string { return "ftp" }

func (f *FTP) objectKey(key string) string { return path.Join(f.prefix, key+dumpingSuffix) }

func (f *FTP) Create(ctx context.Context, key string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := f.withConn(ctx, func(c *ftp.ServerConn) error {
			return c.Stor(f.objectKey(key), pr)
		})
		_ = pr.CloseWithError(err)
		done <- err
	}()
	return &pipeUploader{pw: pw, done: done}, nil
}

func (f *FTP) withConn(ctx context.Context, fn func(*ftp.ServerConn) error) error {
	obj, err := f.pool.BorrowObject(ctx)
	if err != nil {
		return err
	}
	conn := obj.(*ftp.ServerConn)
	err = fn(conn)
	if err != nil {
		_ = f.pool.InvalidateObject(ctx, obj)
		return err
	}
	return f.pool.ReturnObject(ctx, obj)
}

func (f *FTP) Finalize(ctx context.Context, key string) error {
	return f.withConn(ctx, func(c *ftp.ServerConn) error {
		return c.Rename(f.objectKey(key), path.Join(f.prefix, key))
	})
}

func (f *FTP) Abandon(ctx context.Context, key string) error {
	return f.withConn(ctx, func(c *ftp.ServerConn) error {
		return c.Delete(f.objectKey(key))
	})
}

func (f *FTP) Close(ctx context.Context) error {
	f.pool.Close(ctx)
	return nil
}
