package sink

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	libSFTP "github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTP streams dump files over SSH, grounded on pkg/storage/sftp.go's
// Connect()/PutFile(). sftp.Client.Create already returns an io.WriteCloser
// writing straight to the remote file, same as GCS, so Create needs no pipe
// adaptor here.
type SFTP struct {
	client *libSFTP.Client
	ssh    *ssh.Client
	root   string
}

func NewSFTP(ctx context.Context, u *url.URL) (*SFTP, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("invalid config: sftp URL %q is missing a host", u.String())
	}
	password, _ := u.User.Password()
	keyPath := u.Query().Get("key")
	var authMethods []ssh.AuthMethod
	if keyPath != "" {
		raw, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, err
		}
		signer, err := ssh.ParsePrivateKey(raw)
		if err != nil {
			return nil, err
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if password != "" {
		authMethods = append(authMethods, ssh.Password(password))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("invalid config: sftp URL %q needs a password or key query parameter", u.String())
	}
	sshConn, err := ssh.Dial("tcp", u.Host, &ssh.ClientConfig{
		User:            u.User.Username(),
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	if err != nil {
		return nil, err
	}
	client, err := libSFTP.NewClient(sshConn)
	if err != nil {
		_ = sshConn.Close()
		return nil, err
	}
	return &SFTP{client: client, ssh: sshConn, root: strings.TrimPrefix(u.Path, "/")}, nil
}

func (s *SFTP) Kind() string { return "sftp" }

func (s *SFTP) filePath(key string) string { return path.Join(s.root, key+dumpingSuffix) }

func (s *SFTP) Create(ctx context.Context, key string) (io.WriteCloser, error) {
	filePath := s.filePath(key)
	if err := s.client.MkdirAll(path.Dir(filePath)); err != nil {
		return nil, err
	}
	return s.client.Create(filePath)
}

func (s *SFTP) Finalize(ctx context.Context, key string) error {
	return s.client.Rename(s.filePath(key), path.Join(s.root, key))
}

func (s *SFTP) Abandon(ctx context.Context, key string) error {
	return s.client.Remove(s.filePath(key))
}

func (s *SFTP) Close(context.Context) error {
	_ = s.client.Close()
	return s.ssh.Close()
}
