package deploy_test

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/sftp"

	"swissdamed/internal/deploy"
)

// ─────────────────────────────────────────────────────────────
// ParseTarget
// ─────────────────────────────────────────────────────────────

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in   string
		want deploy.Target
	}{
		{"deploy@example.org:/var/www/swissdamed.db", deploy.Target{User: "deploy", Host: "example.org", Port: 22, Path: "/var/www/swissdamed.db"}},
		{"sftp://deploy@example.org:2222/srv/db/", deploy.Target{User: "deploy", Host: "example.org", Port: 2222, Path: "/srv/db/"}},
		{"ssh://root@10.0.0.5/tmp/x.db", deploy.Target{User: "root", Host: "10.0.0.5", Port: 22, Path: "/tmp/x.db"}},
	}
	for _, tt := range tests {
		got, err := deploy.ParseTarget(tt.in)
		if err != nil {
			t.Errorf("ParseTarget(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTarget(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseTarget_Invalid(t *testing.T) {
	for _, in := range []string{"", "example.org", "user@:/path", "user@host:", "sftp://user@host:notaport/x"} {
		if _, err := deploy.ParseTarget(in); err == nil {
			t.Errorf("ParseTarget(%q): expected error", in)
		}
	}
}

func TestUpload_NoCredentials(t *testing.T) {
	cfg := deploy.Config{Target: deploy.Target{User: "u", Host: "127.0.0.1", Port: 1, Path: "/x"}}
	_, err := deploy.Upload(t.Context(), cfg, "/nonexistent")
	if err == nil || !strings.Contains(err.Error(), "credentials") {
		t.Fatalf("err = %v, want credentials error", err)
	}
}

// ─────────────────────────────────────────────────────────────
// Put (in-memory SFTP server)
// ─────────────────────────────────────────────────────────────

func memClient(t *testing.T) *sftp.Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go server.Serve()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		t.Fatalf("NewClientPipe: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client
}

func localFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func readRemote(t *testing.T, c *sftp.Client, p string) string {
	t.Helper()
	f, err := c.Open(p)
	if err != nil {
		t.Fatalf("open remote %s: %v", p, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestPut_ReplacesFile(t *testing.T) {
	c := memClient(t)

	first := localFile(t, "swissdamed_01.01.2026.db", "first")
	if _, err := deploy.Put(c, first, "/srv/swissdamed.db"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	second := localFile(t, "swissdamed_02.01.2026.db", "second")
	got, err := deploy.Put(c, second, "/srv/swissdamed.db")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got != "/srv/swissdamed.db" {
		t.Fatalf("remote = %q", got)
	}
	if body := readRemote(t, c, got); body != "second" {
		t.Fatalf("remote body = %q, want second", body)
	}

	entries, err := c.ReadDir("/srv")
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestPut_IntoDirectory(t *testing.T) {
	c := memClient(t)
	local := localFile(t, "swissdamed_03.01.2026.db", "data")

	got, err := deploy.Put(c, local, "/upload/")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got != "/upload/swissdamed_03.01.2026.db" {
		t.Fatalf("remote = %q", got)
	}
	if body := readRemote(t, c, got); body != "data" {
		t.Fatalf("remote body = %q", body)
	}
}

func TestPut_MissingLocalFile(t *testing.T) {
	c := memClient(t)
	if _, err := deploy.Put(c, filepath.Join(t.TempDir(), "nope.db"), "/srv/x.db"); err == nil {
		t.Fatal("expected error for missing local file")
	}
}
