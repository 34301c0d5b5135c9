package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ── SFTP deploy ────────────────────────────────────────────
// Uploads an artifact to a remote host. The file is written under a
// temporary name next to the destination and renamed over it, so the
// remote reader only ever sees a complete database.

// Target is a parsed remote location.
type Target struct {
	User string
	Host string
	Port int
	Path string
}

func (t Target) String() string {
	return fmt.Sprintf("%s@%s:%s", t.User, net.JoinHostPort(t.Host, strconv.Itoa(t.Port)), t.Path)
}

// ParseTarget accepts scp-style "user@host:/path" and
// "sftp://user@host:port/path". The user defaults to $USER and the
// port to 22.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, errors.New("empty deploy target")
	}

	t := Target{Port: 22}
	if strings.HasPrefix(s, "sftp://") || strings.HasPrefix(s, "ssh://") {
		u, err := url.Parse(s)
		if err != nil {
			return Target{}, fmt.Errorf("invalid deploy target %q: %w", s, err)
		}
		t.Host = u.Hostname()
		if p := u.Port(); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				return Target{}, fmt.Errorf("invalid port in %q: %w", s, err)
			}
			t.Port = port
		}
		if u.User != nil {
			t.User = u.User.Username()
		}
		t.Path = u.Path
	} else {
		hostPart, remotePath, ok := strings.Cut(s, ":")
		if !ok {
			return Target{}, fmt.Errorf("invalid deploy target %q: want user@host:/path", s)
		}
		if user, host, ok := strings.Cut(hostPart, "@"); ok {
			t.User, t.Host = user, host
		} else {
			t.Host = hostPart
		}
		t.Path = remotePath
	}

	if t.Host == "" {
		return Target{}, fmt.Errorf("invalid deploy target %q: missing host", s)
	}
	if t.Path == "" {
		return Target{}, fmt.Errorf("invalid deploy target %q: missing path", s)
	}
	if t.User == "" {
		t.User = os.Getenv("USER")
	}
	return t, nil
}

// Config holds the credentials used to reach a Target.
type Config struct {
	Target     Target
	KeyFile    string // private key (PEM / OpenSSH)
	Password   string // password auth, or the key passphrase
	KnownHosts string // empty disables host key checking
	Timeout    time.Duration
}

func (c Config) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if c.KeyFile != "" {
		keyData, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && c.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(c.Password))
		}
		if err != nil {
			return nil, fmt.Errorf("parse key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.Password != "" {
		auth = append(auth, ssh.Password(c.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh credentials: set a key file or a password")
	}

	cfg := &ssh.ClientConfig{
		User:            c.Target.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.Timeout,
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if c.KnownHosts != "" {
		callback, err := knownhosts.New(c.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		cfg.HostKeyCallback = callback
	}
	return cfg, nil
}

// Upload copies localPath to the target and returns the remote path.
func Upload(ctx context.Context, cfg Config, localPath string) (string, error) {
	clientCfg, err := cfg.clientConfig()
	if err != nil {
		return "", err
	}

	addr := net.JoinHostPort(cfg.Target.Host, strconv.Itoa(cfg.Target.Port))
	log.Printf("deploy: connecting to %s", addr)
	dialer := net.Dialer{Timeout: clientCfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake: %w", err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", fmt.Errorf("sftp session: %w", err)
	}
	defer client.Close()

	// Abort the transfer when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { sshClient.Close() })
	defer stop()

	remote, err := Put(client, localPath, cfg.Target.Path)
	if err != nil && ctx.Err() != nil {
		return "", ctx.Err()
	}
	return remote, err
}

// Put uploads localPath over an established SFTP session. When
// remotePath names a directory (or ends in "/"), the local file name
// is appended.
func Put(client *sftp.Client, localPath, remotePath string) (string, error) {
	if strings.HasSuffix(remotePath, "/") {
		remotePath = path.Join(remotePath, filepath.Base(localPath))
	} else if fi, err := client.Stat(remotePath); err == nil && fi.IsDir() {
		remotePath = path.Join(remotePath, filepath.Base(localPath))
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return "", fmt.Errorf("create remote directory %s: %w", dir, err)
		}
	}

	tmp := remotePath + ".tmp-" + uuid.NewString()
	dst, err := client.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", tmp, err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		client.Remove(tmp)
		return "", fmt.Errorf("upload %s: %w", tmp, err)
	}

	if err := client.PosixRename(tmp, remotePath); err != nil {
		// Servers without the posix-rename extension refuse to overwrite.
		if rmErr := client.Remove(remotePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			client.Remove(tmp)
			return "", fmt.Errorf("replace %s: %w", remotePath, rmErr)
		}
		if err := client.Rename(tmp, remotePath); err != nil {
			client.Remove(tmp)
			return "", fmt.Errorf("rename %s: %w", tmp, err)
		}
	}
	log.Printf("deploy: uploaded %d bytes to %s", n, remotePath)
	return remotePath, nil
}
