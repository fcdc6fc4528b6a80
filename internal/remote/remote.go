// Package remote defines the storage/grid service the campaign talks to and
// provides two adapters: Dir, a grid emulation rooted on a local directory,
// and Alien, which drives the alien command-line tools.
//
// All calls are synchronous. Paths are slash-separated grid paths.
package remote

import (
	"context"
	"path"
	"strings"
)

// Entry is one item of a remote directory listing.
type Entry struct {
	Name  string
	IsDir bool
}

// Service is the remote storage and job submission service.
type Service interface {
	// DirExists reports whether the directory exists.
	DirExists(ctx context.Context, dir string) (bool, error)

	// FileExists reports whether the file exists.
	FileExists(ctx context.Context, file string) (bool, error)

	// Mkdir creates dir, including parents when recursive is set.
	Mkdir(ctx context.Context, dir string, recursive bool) error

	// CopyIn uploads a local file to a remote path.
	CopyIn(ctx context.Context, localPath, remotePath string) error

	// List returns the entries of dir.
	List(ctx context.Context, dir string) ([]Entry, error)

	// Remove deletes a remote file.
	Remove(ctx context.Context, file string) error

	// Submit sends a "submit <jdl> <args...>" request and returns the job ID.
	Submit(ctx context.Context, request string) (string, error)
}

// Clean normalizes a remote path.
func Clean(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// Join joins remote path elements.
func Join(elem ...string) string {
	return path.Join(elem...)
}

// EnsureDir creates dir recursively when it does not exist yet.
func EnsureDir(ctx context.Context, svc Service, dir string) error {
	ok, err := svc.DirExists(ctx, dir)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return svc.Mkdir(ctx, dir, true)
}

// Walk lists dir recursively and calls fn with the path of every file.
// Directories for which skip returns true are not descended into.
func Walk(ctx context.Context, svc Service, dir string, skip func(name string) bool, fn func(file string)) error {
	entries, err := svc.List(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := Join(dir, e.Name)
		if e.IsDir {
			if skip != nil && skip(e.Name) {
				continue
			}
			if err := Walk(ctx, svc, p, skip, fn); err != nil {
				return err
			}
			continue
		}
		fn(p)
	}
	return nil
}
