package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MountMode defines the permission level for a mount point.
type MountMode int

const (
	// MountReadOnly allows only read operations.
	MountReadOnly MountMode = iota
	// MountReadWrite allows writes to existing files.
	MountReadWrite
	// MountReadWriteCreate also allows creating files and directories.
	MountReadWriteCreate
)

func (m MountMode) String() string {
	switch m {
	case MountReadOnly:
		return "ro"
	case MountReadWrite:
		return "rw"
	case MountReadWriteCreate:
		return "rwc"
	}
	return "unknown"
}

// ParseMountMode accepts "ro", "rw" or "rwc".
func ParseMountMode(s string) (MountMode, error) {
	switch strings.ToLower(s) {
	case "ro", "":
		return MountReadOnly, nil
	case "rw":
		return MountReadWrite, nil
	case "rwc":
		return MountReadWriteCreate, nil
	}
	return 0, fmt.Errorf("invalid mount mode %q (want ro, rw or rwc)", s)
}

// Mount maps a virtual path seen by guest code onto a host directory.
type Mount struct {
	VirtualPath string
	HostPath    string
	Mode        MountMode
}

// ParseMount parses "virtual:host[:mode]".
func ParseMount(spec string) (Mount, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return Mount{}, fmt.Errorf("invalid mount %q (want virtual:host[:ro|rw|rwc])", spec)
	}
	m := Mount{VirtualPath: parts[0], HostPath: parts[1]}
	if len(parts) == 3 {
		mode, err := ParseMountMode(parts[2])
		if err != nil {
			return Mount{}, err
		}
		m.Mode = mode
	}
	return m, nil
}

const (
	DefaultMaxFileSize   = 10 << 20
	DefaultMaxWriteSize  = 10 << 20
	DefaultMaxPathLength = 4096
)

type fsConfig struct {
	maxFileSize   int64
	maxWriteSize  int64
	maxPathLength int
}

// FSOption configures limits on an FS.
type FSOption func(*fsConfig)

func WithMaxFileSize(n int64) FSOption { return func(c *fsConfig) { c.maxFileSize = n } }
func WithMaxWriteSize(n int64) FSOption { return func(c *fsConfig) { c.maxWriteSize = n } }
func WithMaxPathLength(n int) FSOption { return func(c *fsConfig) { c.maxPathLength = n } }

// FS provides filesystem operations restricted to explicit mount points.
// Errors use the code-prefixed messages guest code expects from fs.
type FS struct {
	mounts []Mount
	cfg    fsConfig
}

func NewFS(mounts []Mount, opts ...FSOption) *FS {
	cfg := fsConfig{
		maxFileSize:   DefaultMaxFileSize,
		maxWriteSize:  DefaultMaxWriteSize,
		maxPathLength: DefaultMaxPathLength,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		hp, err := filepath.Abs(m.HostPath)
		if err != nil {
			continue
		}
		normalized = append(normalized, Mount{
			VirtualPath: "/" + strings.Trim(m.VirtualPath, "/"),
			HostPath:    hp,
			Mode:        m.Mode,
		})
	}
	return &FS{mounts: normalized, cfg: cfg}
}

// Register installs the fs_* functions.
func (f *FS) Register(r *Registry) {
	r.Register("fs_read", f.Read)
	r.Register("fs_write", f.Write)
	r.Register("fs_append", f.Append)
	r.Register("fs_list", f.List)
	r.Register("fs_exists", f.Exists)
	r.Register("fs_mkdir", f.Mkdir)
	r.Register("fs_remove", f.Remove)
	r.Register("fs_stat", f.Stat)
}

type fsError struct {
	code string
	msg  string
	path string
}

func (e *fsError) Error() string {
	return fmt.Sprintf("%s: %s, '%s'", e.code, e.msg, e.path)
}

func errNotFound(p string) error { return &fsError{"ENOENT", "no such file or directory", p} }
func errDenied(p string) error { return &fsError{"EACCES", "permission denied", p} }
func errIsDir(p string) error { return &fsError{"EISDIR", "illegal operation on a directory", p} }
func errNotEmpty(p string) error { return &fsError{"ENOTEMPTY", "directory not empty", p} }
func errTooLarge(p string) error { return &fsError{"EFBIG", "file too large", p} }
func errNameLong(p string) error { return &fsError{"ENAMETOOLONG", "name too long", p} }

// resolve maps a virtual path to its mount and host path.
func (f *FS) resolve(virtualPath string) (*Mount, string, error) {
	if len(virtualPath) > f.cfg.maxPathLength {
		return nil, "", errNameLong(virtualPath)
	}
	vp := path.Clean("/" + virtualPath)
	for i := range f.mounts {
		m := &f.mounts[i]
		if vp != m.VirtualPath && !strings.HasPrefix(vp, m.VirtualPath+"/") && m.VirtualPath != "/" {
			continue
		}
		rel := strings.TrimPrefix(vp, m.VirtualPath)
		host := filepath.Join(m.HostPath, filepath.FromSlash(rel))
		if host != m.HostPath && !strings.HasPrefix(host, m.HostPath+string(filepath.Separator)) {
			return nil, "", errDenied(virtualPath)
		}
		return m, host, nil
	}
	return nil, "", errNotFound(virtualPath)
}

// resolveWrite resolves a path for modification. create reports whether the
// operation may bring a new entry into existence.
func (f *FS) resolveWrite(virtualPath string, create bool) (string, error) {
	m, host, err := f.resolve(virtualPath)
	if err != nil {
		return "", err
	}
	switch m.Mode {
	case MountReadOnly:
		return "", errDenied(virtualPath)
	case MountReadWrite:
		if create {
			if _, err := os.Stat(host); errors.Is(err, os.ErrNotExist) {
				return "", errDenied(virtualPath)
			}
		}
	}
	return host, nil
}

func mapOSError(err error, p string) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return errNotFound(p)
	case errors.Is(err, os.ErrPermission):
		return errDenied(p)
	case strings.Contains(err.Error(), "directory not empty"):
		return errNotEmpty(p)
	case strings.Contains(err.Error(), "is a directory"):
		return errIsDir(p)
	}
	return fmt.Errorf("EIO: %v, '%s'", err, p)
}

// Read returns the contents of a file.
func (f *FS) Read(ctx context.Context, args map[string]any) (any, error) {
	p, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	_, host, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(host)
	if err != nil {
		return nil, mapOSError(err, p)
	}
	if info.IsDir() {
		return nil, errIsDir(p)
	}
	if info.Size() > f.cfg.maxFileSize {
		return nil, errTooLarge(p)
	}
	data, err := os.ReadFile(host)
	if err != nil {
		return nil, mapOSError(err, p)
	}
	return string(data), nil
}

// Write replaces the contents of a file.
func (f *FS) Write(ctx context.Context, args map[string]any) (any, error) {
	return f.write(args, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

// Append adds content to the end of a file.
func (f *FS) Append(ctx context.Context, args map[string]any) (any, error) {
	return f.write(args, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
}

func (f *FS) write(args map[string]any, flag int) (any, error) {
	p, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > f.cfg.maxWriteSize {
		return nil, errTooLarge(p)
	}
	host, err := f.resolveWrite(p, true)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(host, flag, 0o644)
	if err != nil {
		return nil, mapOSError(err, p)
	}
	defer file.Close()
	if _, err := file.WriteString(content); err != nil {
		return nil, mapOSError(err, p)
	}
	return nil, nil
}

// List returns the entries of a directory.
func (f *FS) List(ctx context.Context, args map[string]any) (any, error) {
	p, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	_, host, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(host)
	if err != nil {
		return nil, mapOSError(err, p)
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{"name": e.Name(), "is_dir": e.IsDir()}
		if info, err := e.Info(); err == nil {
			item["size"] = info.Size()
		}
		out = append(out, item)
	}
	return out, nil
}

// Exists reports whether a path exists. Paths outside every mount do not.
func (f *FS) Exists(ctx context.Context, args map[string]any) (any, error) {
	p, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	_, host, err := f.resolve(p)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(host)
	return err == nil, nil
}

// Mkdir creates a directory. With recursive set, parents are created too.
func (f *FS) Mkdir(ctx context.Context, args map[string]any) (any, error) {
	p, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	m, host, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	if m.Mode != MountReadWriteCreate {
		return nil, errDenied(p)
	}
	if recursive, _ := args["recursive"].(bool); recursive {
		err = os.MkdirAll(host, 0o755)
	} else {
		err = os.Mkdir(host, 0o755)
	}
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, &fsError{"EEXIST", "file already exists", p}
		}
		return nil, mapOSError(err, p)
	}
	return nil, nil
}

// Remove deletes a file or directory. Non-empty directories need recursive.
func (f *FS) Remove(ctx context.Context, args map[string]any) (any, error) {
	p, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	host, err := f.resolveWrite(p, false)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(host); err != nil {
		return nil, mapOSError(err, p)
	}
	if recursive, _ := args["recursive"].(bool); recursive {
		err = os.RemoveAll(host)
	} else {
		err = os.Remove(host)
	}
	if err != nil {
		return nil, mapOSError(err, p)
	}
	return nil, nil
}

// Stat describes a file or directory.
func (f *FS) Stat(ctx context.Context, args map[string]any) (any, error) {
	p, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	_, host, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(host)
	if err != nil {
		return nil, mapOSError(err, p)
	}
	return map[string]any{
		"name":     info.Name(),
		"size":     info.Size(),
		"is_dir":   info.IsDir(),
		"mod_time": info.ModTime().UnixMilli(),
	}, nil
}
