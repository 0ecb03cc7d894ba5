package hostfunc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mountDir mounts a fresh temp dir at /m with the given mode and seeds it
// with files.
func mountDir(t *testing.T, mode MountMode, files map[string]string, opts ...FSOption) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return NewFS([]Mount{{VirtualPath: "/m", HostPath: dir, Mode: mode}}, opts...), dir
}

func pathArg(p string) map[string]any { return map[string]any{"path": p} }

func writeArgs(p, content string) map[string]any {
	return map[string]any{"path": p, "content": content}
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	code, _, _ := strings.Cut(err.Error(), ":")
	return code
}

func TestFSModes(t *testing.T) {
	ctx := context.Background()
	seed := map[string]string{"old.txt": "before"}

	tests := []struct {
		mode         MountMode
		overwrite    string // error code, empty for success
		create       string
		mkdir        string
		removeExists string
	}{
		{MountReadOnly, "EACCES", "EACCES", "EACCES", "EACCES"},
		{MountReadWrite, "", "EACCES", "EACCES", ""},
		{MountReadWriteCreate, "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			check := func(want string, err error) {
				t.Helper()
				if want == "" {
					assert.NoError(t, err)
				} else {
					assert.Equal(t, want, errCode(t, err))
				}
			}

			fs, dir := mountDir(t, tt.mode, seed)

			_, err := fs.Write(ctx, writeArgs("/m/old.txt", "after"))
			check(tt.overwrite, err)
			_, err = fs.Write(ctx, writeArgs("/m/new.txt", "x"))
			check(tt.create, err)
			_, err = fs.Mkdir(ctx, pathArg("/m/sub"))
			check(tt.mkdir, err)
			_, err = fs.Remove(ctx, pathArg("/m/old.txt"))
			check(tt.removeExists, err)

			// A refused remove leaves the original content readable.
			_, err = os.Stat(filepath.Join(dir, "old.txt"))
			if tt.removeExists == "" {
				assert.True(t, os.IsNotExist(err))
			} else {
				content, err := fs.Read(ctx, pathArg("/m/old.txt"))
				require.NoError(t, err)
				assert.Equal(t, "before", content)
			}
		})
	}
}

func TestFSWriteThenRead(t *testing.T) {
	ctx := context.Background()
	fs, dir := mountDir(t, MountReadWriteCreate, nil)

	_, err := fs.Write(ctx, writeArgs("/m/notes.txt", "first"))
	require.NoError(t, err)
	_, err = fs.Append(ctx, writeArgs("/m/notes.txt", ",second"))
	require.NoError(t, err)

	content, err := fs.Read(ctx, pathArg("/m/notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first,second", content)

	onDisk, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first,second", string(onDisk))

	// Write truncates.
	_, err = fs.Write(ctx, writeArgs("/m/notes.txt", "z"))
	require.NoError(t, err)
	content, _ = fs.Read(ctx, pathArg("/m/notes.txt"))
	assert.Equal(t, "z", content)
}

func TestFSList(t *testing.T) {
	fs, _ := mountDir(t, MountReadOnly, map[string]string{
		"a.txt":     "1",
		"b.txt":     "22",
		"sub/c.txt": "333",
	})

	result, err := fs.List(context.Background(), pathArg("/m"))
	require.NoError(t, err)

	got := map[string]bool{}
	for _, e := range result.([]map[string]any) {
		got[e["name"].(string)] = e["is_dir"].(bool)
	}
	assert.Equal(t, map[string]bool{"a.txt": false, "b.txt": false, "sub": true}, got)
}

func TestFSStat(t *testing.T) {
	fs, _ := mountDir(t, MountReadOnly, map[string]string{"file.txt": "hello"})

	result, err := fs.Stat(context.Background(), pathArg("/m/file.txt"))
	require.NoError(t, err)

	stat := result.(map[string]any)
	assert.Equal(t, "file.txt", stat["name"])
	assert.Equal(t, int64(5), stat["size"])
	assert.Equal(t, false, stat["is_dir"])
	assert.Positive(t, stat["mod_time"])
}

func TestFSExists(t *testing.T) {
	fs, _ := mountDir(t, MountReadOnly, map[string]string{"here.txt": ""})

	tests := map[string]bool{
		"/m/here.txt":         true,
		"/m":                  true,
		"/m/gone.txt":         false,
		"/etc/passwd":         false,
		"/m/../m/here.txt":    true,
		"/m/../../etc/passwd": false,
	}
	for p, want := range tests {
		got, err := fs.Exists(context.Background(), pathArg(p))
		require.NoError(t, err, p)
		assert.Equal(t, want, got, p)
	}
}

func TestFSErrorCodes(t *testing.T) {
	ctx := context.Background()
	fs, _ := mountDir(t, MountReadWriteCreate, map[string]string{
		"dir/inner.txt": "x",
		"big.txt":       "0123456789",
	}, WithMaxFileSize(5), WithMaxWriteSize(3), WithMaxPathLength(32))

	tests := []struct {
		name string
		call func() (any, error)
		want string
	}{
		{"missing file", func() (any, error) { return fs.Read(ctx, pathArg("/m/missing.txt")) }, "ENOENT"},
		{"outside mounts", func() (any, error) { return fs.Read(ctx, pathArg("/etc/passwd")) }, "ENOENT"},
		{"traversal", func() (any, error) { return fs.Read(ctx, pathArg("/m/../secret.txt")) }, "ENOENT"},
		{"read directory", func() (any, error) { return fs.Read(ctx, pathArg("/m/dir")) }, "EISDIR"},
		{"file too large", func() (any, error) { return fs.Read(ctx, pathArg("/m/big.txt")) }, "EFBIG"},
		{"write too large", func() (any, error) { return fs.Write(ctx, writeArgs("/m/w.txt", "toolong")) }, "EFBIG"},
		{"path too long", func() (any, error) { return fs.Read(ctx, pathArg("/m/" + strings.Repeat("x", 64))) }, "ENAMETOOLONG"},
		{"mkdir existing", func() (any, error) { return fs.Mkdir(ctx, pathArg("/m/dir")) }, "EEXIST"},
		{"remove non-empty", func() (any, error) { return fs.Remove(ctx, pathArg("/m/dir")) }, "ENOTEMPTY"},
		{"remove missing", func() (any, error) { return fs.Remove(ctx, pathArg("/m/nope")) }, "ENOENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.call()
			assert.Equal(t, tt.want, errCode(t, err))
		})
	}
}

func TestFSRecursive(t *testing.T) {
	ctx := context.Background()
	fs, dir := mountDir(t, MountReadWriteCreate, nil)

	_, err := fs.Mkdir(ctx, map[string]any{"path": "/m/a/b/c", "recursive": true})
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "a", "b", "c"))

	_, err = fs.Remove(ctx, map[string]any{"path": "/m/a", "recursive": true})
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, "a"))
}

func TestFSRegister(t *testing.T) {
	fs, _ := mountDir(t, MountReadOnly, map[string]string{"x.txt": "via registry"})
	r := NewRegistry()
	fs.Register(r)

	content, err := r.Call(context.Background(), "fs_read", pathArg("/m/x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "via registry", content)
}

func TestParseMount(t *testing.T) {
	tests := []struct {
		in      string
		want    Mount
		wantErr bool
	}{
		{in: "/data:./input:rw", want: Mount{VirtualPath: "/data", HostPath: "./input", Mode: MountReadWrite}},
		{in: "/data:./input", want: Mount{VirtualPath: "/data", HostPath: "./input", Mode: MountReadOnly}},
		{in: "/out:/tmp/out:RWC", want: Mount{VirtualPath: "/out", HostPath: "/tmp/out", Mode: MountReadWriteCreate}},
		{in: "/data", wantErr: true},
		{in: ":./input", wantErr: true},
		{in: "/data:./input:xx", wantErr: true},
		{in: "/a:b:c:d", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseMount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
}
