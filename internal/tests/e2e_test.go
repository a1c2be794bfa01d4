// Package tests runs a complete clipshare server in-process and drives it
// over HTTPS and WebSocket the way real clients do.
package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/distsystem/clipshare/internal/cli/command"
	"github.com/distsystem/clipshare/internal/core/domain"
	"github.com/distsystem/clipshare/internal/infra/tlscert"
	"github.com/distsystem/clipshare/internal/server/app"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cliApp := command.App()
	cliApp.Writer = &out
	cliApp.ErrWriter = &bytes.Buffer{}
	err := cliApp.Run(append([]string{"clipshare"}, args...))
	return out.String(), err
}

func TestServer_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dir := t.TempDir()
	port := freePort(t)
	configPath := filepath.Join(dir, "config.toml")
	config := `
[server]
host = "127.0.0.1"
port = ` + strconv.Itoa(port) + `
max_entries = 2
db_path = "` + filepath.ToSlash(filepath.Join(dir, "db")) + `"
cert_dir = "` + filepath.ToSlash(filepath.Join(dir, "certs")) + `"
tls = true

[discovery]
enabled = false

[log]
level = "error"
`
	if err := os.WriteFile(configPath, []byte(config), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, app.Options{ConfigFile: configPath}) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() = %v", err)
			}
		case <-time.After(15 * time.Second):
			t.Error("server did not stop")
		}
	}()

	certPath := filepath.Join(dir, "certs", tlscert.CertFileName)
	base := "https://localhost:" + strconv.Itoa(port)
	server := []string{"--server", base, "--ca-cert", certPath}

	deadline := time.Now().Add(15 * time.Second)
	for {
		if _, err := runCLI(t, append(server, "status")...); err == nil {
			break
		} else if time.Now().After(deadline) {
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	tlsConfig, err := tlscert.ClientConfig(certPath, false)
	if err != nil {
		t.Fatalf("ClientConfig() error = %v", err)
	}
	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	peer, _, err := websocket.Dial(dialCtx, "wss://localhost:"+strconv.Itoa(port)+"/ws?host=phone", &websocket.DialOptions{
		HTTPClient: &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConfig}},
	})
	if err != nil {
		t.Fatalf("websocket Dial() error = %v", err)
	}
	defer peer.CloseNow()

	// Registration completes after the handshake.
	for {
		out, err := runCLI(t, append(server, "-o", "json", "status")...)
		var health struct {
			Peers int `json:"peers"`
		}
		if err == nil && json.Unmarshal([]byte(out), &health) == nil && health.Peers == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("peer channel never registered")
		}
		time.Sleep(20 * time.Millisecond)
	}

	var pushed domain.Entry
	frames := make(chan domain.PeerMessage, 4)
	go func() {
		for {
			_, data, err := peer.Read(ctx)
			if err != nil {
				return
			}
			var msg domain.PeerMessage
			if json.Unmarshal(data, &msg) == nil {
				frames <- msg
			}
		}
	}()

	out, err := runCLI(t, append(server, "-o", "json", "push", "--source-host", "laptop", "first")...)
	if err != nil {
		t.Fatalf("push error = %v", err)
	}
	if err := json.Unmarshal([]byte(out), &pushed); err != nil || pushed.ID == "" {
		t.Fatalf("push output = %q (%v)", out, err)
	}

	select {
	case msg := <-frames:
		if msg.Type != domain.MessageTypeNewEntry || msg.Entry.ID != pushed.ID {
			t.Errorf("frame = %+v, want new_entry for %s", msg, pushed.ID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("peer never received a new_entry frame")
	}

	// Pushing from the peer's own host is not echoed back to it.
	runCLI(t, append(server, "push", "--source-host", "phone", "from phone")...)
	select {
	case msg := <-frames:
		if msg.Entry != nil && msg.Entry.SourceHost == "phone" {
			t.Errorf("entry echoed to its source: %+v", msg.Entry)
		}
	case <-time.After(300 * time.Millisecond):
	}

	runCLI(t, append(server, "push", "--source-host", "laptop", "third")...)

	out, err = runCLI(t, append(server, "-o", "json", "entries", "list")...)
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	var entries []domain.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("list output = %q", out)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want capacity 2", len(entries))
	}
	if entries[0].TextPreview != "third" {
		t.Errorf("newest = %q, want third", entries[0].TextPreview)
	}

	if _, err := runCLI(t, append(server, "entries", "delete", entries[0].ID)...); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if _, err := runCLI(t, append(server, "entries", "get", entries[0].ID)...); err == nil || !strings.Contains(err.Error(), "CS-ENTRY-4040") {
		t.Errorf("get deleted entry error = %v, want CS-ENTRY-4040", err)
	}

	if _, err := runCLI(t, "--server", base, "status"); err == nil {
		t.Error("status without --ca-cert trusted a self-signed server")
	}
}
