// Package testutil holds fixtures shared by the campaign package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/roach88/accsubmit/internal/filelist"
	"github.com/roach88/accsubmit/internal/remote"
)

// WriteFiles writes name -> content under dir and returns dir.
func WriteFiles(t testing.TB, dir string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return dir
}

// TemplateDir creates a template directory holding every file of the
// template set for opts. Files default to a one-line macro stub; overrides
// replace or add content by name. Names mapped to "" are left out.
func TemplateDir(t testing.TB, opts filelist.Options, overrides map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{}
	for _, p := range filelist.Templates(opts).Paths() {
		files[p] = "// " + p + "\nvoid macro() {}\n"
	}
	for name, content := range overrides {
		if content == "" {
			delete(files, name)
			continue
		}
		files[name] = content
	}
	return WriteFiles(t, dir, files)
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t testing.TB, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// Grid returns a remote.Dir rooted in a temporary directory.
func Grid(t testing.TB) *remote.Dir {
	t.Helper()
	d, err := remote.NewDir(filepath.Join(t.TempDir(), "grid"))
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	return d
}

// Remote wraps a remote.Service and injects failures.
type Remote struct {
	remote.Service

	// SubmitErr, when set, is consulted before every submission.
	SubmitErr func(request string) error
	// CopyErr, when set, is consulted before every upload.
	CopyErr func(remotePath string) error

	mu       sync.Mutex
	requests []string
}

// Submit records the request, then applies SubmitErr.
func (r *Remote) Submit(ctx context.Context, request string) (string, error) {
	r.mu.Lock()
	r.requests = append(r.requests, request)
	r.mu.Unlock()
	if r.SubmitErr != nil {
		if err := r.SubmitErr(request); err != nil {
			return "", err
		}
	}
	return r.Service.Submit(ctx, request)
}

// CopyIn applies CopyErr, then uploads.
func (r *Remote) CopyIn(ctx context.Context, localPath, remotePath string) error {
	if r.CopyErr != nil {
		if err := r.CopyErr(remotePath); err != nil {
			return err
		}
	}
	return r.Service.CopyIn(ctx, localPath, remotePath)
}

// Requests returns every submission request seen, failed ones included.
func (r *Remote) Requests() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.requests...)
}
