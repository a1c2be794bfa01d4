package app

import (
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

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 5000
max_entries = 10
db_path = "`+filepath.ToSlash(filepath.Join(dir, "db"))+`"
tls = false

[log]
level = "debug"
`)
	t.Setenv("CLIPSHARE_SERVER__MAX_ENTRIES", "20")

	cfg, loader, err := LoadConfig(Options{
		ConfigFile: path,
		Flags:      map[string]any{"log.level": "warn"},
	})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("port = %d, want 5000 from file", cfg.Server.Port)
	}
	if cfg.Server.MaxEntries != 20 {
		t.Errorf("max_entries = %d, want 20 from env", cfg.Server.MaxEntries)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want warn from flags", cfg.Log.Level)
	}
	if cfg.Discovery.Interval != 5*time.Second {
		t.Errorf("discovery.interval = %v, want default 5s", cfg.Discovery.Interval)
	}
	if loader.FilePath() != path {
		t.Errorf("FilePath() = %q, want %q", loader.FilePath(), path)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 70000\n")
	if _, _, err := LoadConfig(Options{ConfigFile: path}); err == nil {
		t.Error("LoadConfig() accepted port 70000")
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, _, err := LoadConfig(Options{ConfigFile: filepath.Join(t.TempDir(), "absent.toml")}); err == nil {
		t.Error("LoadConfig() accepted a missing explicit config file")
	}
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = `+strconv.Itoa(port)+`
db_path = "`+filepath.ToSlash(filepath.Join(dir, "db"))+`"
tls = false

[discovery]
enabled = false

[log]
level = "error"
`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, Options{ConfigFile: path}) }()

	base := "http://127.0.0.1:" + strconv.Itoa(port)
	var health struct {
		Status  string `json:"status"`
		Entries int    `json:"entries"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/health")
		if err == nil {
			json.NewDecoder(resp.Body).Decode(&health)
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became reachable: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if health.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", health.Status)
	}

	resp, err := http.Post(base+"/api/entries", "application/json",
		strings.NewReader(`{"source_host":"t","contents":[{"mime_type":"text/plain","data":"hi"}]}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("create status = %d, want 201", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil after cancel", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	dir := t.TempDir()
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = `+strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)+`
db_path = "`+filepath.ToSlash(filepath.Join(dir, "db"))+`"
tls = false

[discovery]
enabled = false
`)

	if err := Run(context.Background(), Options{ConfigFile: path}); err == nil {
		t.Error("Run() succeeded on a bound port")
	}
}
