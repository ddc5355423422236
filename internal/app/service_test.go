package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/heritagectl/internal/config"
	"github.com/danmuck/heritagectl/internal/testutil/testlog"
)

func TestServiceServesAndShutsDown(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(dir, "heritage.db")
	cfg.Media.Root = filepath.Join(dir, "media")

	svc, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ready")
	if err != nil {
		cancel()
		t.Fatalf("get ready: %v", err)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body["ready"] != true {
		cancel()
		t.Fatalf("unexpected ready response status=%d body=%v", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("service did not shut down")
	}
}

func TestNewServiceRejectsBadDriver(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.Store.Driver = "mongo"
	if _, err := NewService(context.Background(), cfg); err == nil {
		t.Fatalf("expected invalid driver error")
	}
}
