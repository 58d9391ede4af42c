package pod

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

func writeValidConfig(t *testing.T, bundleDir string) {
	t.Helper()
	spec := specs.Spec{Process: &specs.Process{Args: []string{"/bin/sh"}}}
	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "config.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestValidateImageRef_RejectsEmpty(t *testing.T) {
	if _, err := ValidateImageRef(""); rpcerr.KindOf(err) != rpcerr.InvalidArgument {
		t.Fatal("empty image reference should be InvalidArgument")
	}
}

func TestSanitizeRef(t *testing.T) {
	got := sanitizeRef("index.docker.io/library/busybox:latest")
	want := "index.docker.io_library_busybox_latest"
	if got != want {
		t.Errorf("sanitizeRef = %q, want %q", got, want)
	}
}

func TestLocalStore_Resolve(t *testing.T) {
	root := t.TempDir()
	image := ImageRef("library/busybox:latest")

	store := LocalStore{Root: root}
	if _, err := store.Resolve(context.Background(), image); rpcerr.KindOf(err) != rpcerr.NotFound {
		t.Fatalf("Resolve of an unpacked-missing image should be NotFound, got %v", err)
	}

	bundleDir := filepath.Join(root, sanitizeRef(string(image)))
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Resolve(context.Background(), image); rpcerr.KindOf(err) != rpcerr.NotFound {
		t.Fatalf("Resolve of a bundle with no config.json should be NotFound, got %v", err)
	}

	writeValidConfig(t, bundleDir)

	path, err := store.Resolve(context.Background(), image)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != bundleDir {
		t.Errorf("Resolve = %q, want %q", path, bundleDir)
	}
}

func TestLocalStore_Resolve_RejectsConfigWithoutProcessArgs(t *testing.T) {
	root := t.TempDir()
	image := ImageRef("library/busybox:latest")
	bundleDir := filepath.Join(root, sanitizeRef(string(image)))
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "config.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	store := LocalStore{Root: root}
	if _, err := store.Resolve(context.Background(), image); rpcerr.KindOf(err) != rpcerr.InvalidArgument {
		t.Fatalf("Resolve of a config.json without process.args should be InvalidArgument, got %v", err)
	}
}
