package pod

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// ImageRef is a validated OCI image reference, e.g.
// "index.docker.io/library/busybox:latest".
type ImageRef string

// ValidateImageRef rejects the empty reference. It intentionally does
// not parse the reference further; that is the resolver's job.
func ValidateImageRef(s string) (ImageRef, error) {
	if s == "" {
		return "", rpcerr.InvalidArgumentf("image reference must not be empty")
	}
	return ImageRef(s), nil
}

// LocalStore resolves images already unpacked under a local directory
// tree, laid out as <root>/<image-ref-with-slashes>. It never fetches;
// callers needing pull-on-miss should wrap it with a fetcher.
type LocalStore struct {
	Root string
}

func (s LocalStore) bundlePath(image ImageRef) string {
	return s.Root + "/" + sanitizeRef(string(image))
}

// Resolve implements Resolver, failing if the image has not already been
// unpacked into the store (no network fetch is attempted) or if its
// config.json is not a well-formed OCI runtime spec with a process to run.
func (s LocalStore) Resolve(_ context.Context, image ImageRef) (string, error) {
	path := s.bundlePath(image)
	if _, err := os.Stat(path); err != nil {
		return "", rpcerr.NotFoundf("image %q not found in local store %q", image, s.Root)
	}
	if err := validateBundleSpec(path); err != nil {
		return "", err
	}
	return path, nil
}

// validateBundleSpec reads <path>/config.json, the OCI runtime spec go-runc
// itself expects a bundle to carry, mirroring how runsc/boot's Controller
// keeps the unmarshaled *specs.Spec it was started with on hand rather than
// re-parsing the bundle on every operation.
func validateBundleSpec(path string) error {
	data, err := os.ReadFile(filepath.Join(path, "config.json"))
	if err != nil {
		return rpcerr.NotFoundf("image bundle %q has no config.json", path)
	}
	var spec specs.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return rpcerr.InvalidArgumentf("image bundle %q: malformed config.json: %v", path, err)
	}
	if spec.Process == nil || len(spec.Process.Args) == 0 {
		return rpcerr.InvalidArgumentf("image bundle %q: config.json has no process.args", path)
	}
	return nil
}

func sanitizeRef(ref string) string {
	out := make([]rune, 0, len(ref))
	for _, r := range ref {
		switch r {
		case '/', ':':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
