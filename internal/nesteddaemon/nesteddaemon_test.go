package nesteddaemon

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestWaitUntilServing_SucceedsOnceSocketExists(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "cell.sock")

	nd := &NestedDaemon{clientConfig: ClientConfig{SocketPath: sockPath}}

	go func() {
		time.Sleep(20 * time.Millisecond)
		f, err := os.Create(sockPath)
		if err == nil {
			f.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := nd.WaitUntilServing(ctx); err != nil {
		t.Fatalf("WaitUntilServing: %v", err)
	}
}

func TestWaitUntilServing_RespectsContextCancellation(t *testing.T) {
	nd := &NestedDaemon{clientConfig: ClientConfig{SocketPath: "/nonexistent/path/cell.sock"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := nd.WaitUntilServing(ctx); err == nil {
		t.Fatal("WaitUntilServing should fail once the context is already canceled")
	}
}

func TestShutdownAndKill_AreIdempotent(t *testing.T) {
	cmd := exec.Command("/bin/sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn test process: %v", err)
	}
	nd := &NestedDaemon{cmd: cmd, pid: cmd.Process.Pid}

	if _, err := nd.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if _, err := nd.Kill(); err != nil {
		t.Fatalf("second Kill should be idempotent, got %v", err)
	}
	if _, err := nd.Shutdown(); err != nil {
		t.Fatalf("Shutdown on an already-reaped daemon should be idempotent, got %v", err)
	}
}

func TestClientConfig_RoundTrips(t *testing.T) {
	cfg := ClientConfig{SocketPath: "/tmp/x.sock", CACert: "ca", ClientCert: "cert", ClientKey: "key", ServerName: "sni"}
	nd := &NestedDaemon{clientConfig: cfg}
	if got := nd.ClientConfig(); got != cfg {
		t.Errorf("ClientConfig() = %+v, want %+v", got, cfg)
	}
}
