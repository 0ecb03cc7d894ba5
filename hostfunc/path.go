package hostfunc

import (
	"context"
	"path"
	"strings"
)

// Path implements POSIX path manipulation for the guest path module. The
// guest working directory is always "/".
type Path struct{}

func (Path) Register(r *Registry) {
	r.Register("path_join", parts(Join))
	r.Register("path_resolve", parts(Resolve))
	r.Register("path_normalize", single(Normalize))
	r.Register("path_dirname", single(Dirname))
	r.Register("path_extname", single(Extname))
	r.Register("path_is_absolute", func(ctx context.Context, args map[string]any) (any, error) {
		p, err := stringArg(args, "path")
		if err != nil {
			return nil, err
		}
		return strings.HasPrefix(p, "/"), nil
	})
	r.Register("path_basename", func(ctx context.Context, args map[string]any) (any, error) {
		p, err := stringArg(args, "path")
		if err != nil {
			return nil, err
		}
		ext, _ := args["ext"].(string)
		return Basename(p, ext), nil
	})
	r.Register("path_relative", func(ctx context.Context, args map[string]any) (any, error) {
		from, err := stringArg(args, "from")
		if err != nil {
			return nil, err
		}
		to, err := stringArg(args, "to")
		if err != nil {
			return nil, err
		}
		return Relative(from, to), nil
	})
}

func parts(fn func(...string) string) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		return fn(stringsArg(args, "parts")...), nil
	}
}

func single(fn func(string) string) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		p, err := stringArg(args, "path")
		if err != nil {
			return nil, err
		}
		return fn(p), nil
	}
}

// Join joins non-empty segments and normalizes the result.
func Join(segs ...string) string {
	var nonEmpty []string
	for _, s := range segs {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 {
		return "."
	}
	return Normalize(strings.Join(nonEmpty, "/"))
}

// Resolve works right to left until an absolute path is formed.
func Resolve(segs ...string) string {
	resolved := ""
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] == "" {
			continue
		}
		resolved = segs[i] + "/" + resolved
		if strings.HasPrefix(segs[i], "/") {
			break
		}
	}
	return path.Clean("/" + resolved)
}

// Normalize cleans p but keeps a trailing slash.
func Normalize(p string) string {
	if p == "" {
		return "."
	}
	out := path.Clean(p)
	if strings.HasSuffix(p, "/") && out != "/" {
		out += "/"
	}
	return out
}

func trimTrailingSlash(p string) string {
	t := strings.TrimRight(p, "/")
	if t == "" && p != "" {
		return "/"
	}
	return t
}

func Dirname(p string) string {
	if p == "" {
		return "."
	}
	return path.Dir(trimTrailingSlash(p))
}

func Basename(p, ext string) string {
	if p == "" {
		return ""
	}
	base := path.Base(trimTrailingSlash(p))
	if base == "/" {
		return ""
	}
	if ext != "" && ext != base && strings.HasSuffix(base, ext) {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// Extname returns the extension of the last segment; dotfiles have none.
func Extname(p string) string {
	base := Basename(p, "")
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 {
		return ""
	}
	return base[idx:]
}

// Relative returns the path from one location to another.
func Relative(from, to string) string {
	f := splitPath(Resolve(from))
	t := splitPath(Resolve(to))
	i := 0
	for i < len(f) && i < len(t) && f[i] == t[i] {
		i++
	}
	var out []string
	for range f[i:] {
		out = append(out, "..")
	}
	out = append(out, t[i:]...)
	return strings.Join(out, "/")
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
