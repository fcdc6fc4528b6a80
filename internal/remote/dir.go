package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/accsubmit/internal/errs"
)

// QueueFile is the name of the submission queue kept at the root of a Dir.
const QueueFile = ".queue"

// Dir emulates the grid on a local directory. Remote path /a/b maps to
// <Root>/a/b. Submissions are appended to <Root>/.queue, one request per
// line, and get the line number as job ID.
type Dir struct {
	Root string
}

// NewDir creates a Dir, creating root if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errs.Wrap(errs.Remote, err, "cannot create grid root").WithPath(root)
	}
	return &Dir{Root: root}, nil
}

func (d *Dir) local(p string) string {
	return filepath.Join(d.Root, filepath.FromSlash(Clean("/"+p)))
}

// DirExists implements Service.
func (d *Dir) DirExists(_ context.Context, dir string) (bool, error) {
	info, err := os.Stat(d.local(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.Remote, err, "stat").WithPath(dir)
	}
	return info.IsDir(), nil
}

// FileExists implements Service.
func (d *Dir) FileExists(_ context.Context, file string) (bool, error) {
	info, err := os.Stat(d.local(file))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.Remote, err, "stat").WithPath(file)
	}
	return !info.IsDir(), nil
}

// Mkdir implements Service.
func (d *Dir) Mkdir(_ context.Context, dir string, recursive bool) error {
	var err error
	if recursive {
		err = os.MkdirAll(d.local(dir), 0755)
	} else {
		err = os.Mkdir(d.local(dir), 0755)
	}
	if err != nil {
		return errs.Wrap(errs.Remote, err, "mkdir").WithPath(dir)
	}
	return nil
}

// CopyIn implements Service. The parent directory must exist.
func (d *Dir) CopyIn(_ context.Context, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return errs.Wrap(errs.Remote, err, "open local file").WithPath(localPath)
	}
	defer src.Close()

	dst, err := os.Create(d.local(remotePath))
	if err != nil {
		return errs.Wrap(errs.Remote, err, "create remote file").WithPath(remotePath)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errs.Wrap(errs.Remote, err, "copy").WithPath(remotePath)
	}
	if err := dst.Close(); err != nil {
		return errs.Wrap(errs.Remote, err, "close remote file").WithPath(remotePath)
	}
	return nil
}

// List implements Service. Entries are sorted by name.
func (d *Dir) List(_ context.Context, dir string) ([]Entry, error) {
	des, err := os.ReadDir(d.local(dir))
	if err != nil {
		return nil, errs.Wrap(errs.Remote, err, "list").WithPath(dir)
	}
	atRoot := Clean("/"+dir) == "/"
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		if atRoot && de.Name() == QueueFile {
			continue
		}
		out = append(out, Entry{Name: de.Name(), IsDir: de.IsDir()})
	}
	return out, nil
}

// Remove implements Service.
func (d *Dir) Remove(_ context.Context, file string) error {
	if err := os.Remove(d.local(file)); err != nil {
		return errs.Wrap(errs.Remote, err, "remove").WithPath(file)
	}
	return nil
}

// Submit implements Service. The job document named by the request must
// exist under Root.
func (d *Dir) Submit(ctx context.Context, request string) (string, error) {
	fields := strings.Fields(request)
	if len(fields) < 2 || fields[0] != "submit" {
		return "", errs.New(errs.Remote, "malformed request %q", request)
	}
	ok, err := d.FileExists(ctx, fields[1])
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errs.New(errs.Remote, "job document does not exist").WithPath(fields[1])
	}

	queue := filepath.Join(d.Root, QueueFile)
	n, err := countLines(queue)
	if err != nil {
		return "", errs.Wrap(errs.Remote, err, "read queue").WithPath(queue)
	}
	f, err := os.OpenFile(queue, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", errs.Wrap(errs.Remote, err, "open queue").WithPath(queue)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, strings.Join(fields, " ")); err != nil {
		return "", errs.Wrap(errs.Remote, err, "append to queue").WithPath(queue)
	}
	return strconv.Itoa(n + 1), nil
}

// Queue returns the submitted requests in order.
func (d *Dir) Queue() ([]string, error) {
	f, err := os.Open(filepath.Join(d.Root, QueueFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}
