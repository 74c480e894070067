package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/c360/perfstreams/errors"
)

// limits bounds what the loader accepts from files and the environment.
type limits struct {
	fileBytes int64
	pathLen   int
	envLen    int
	depth     int
	exts      []string
}

var defaultLimits = limits{
	fileBytes: 4 << 20,
	pathLen:   4096,
	envLen:    8192,
	depth:     24,
	exts:      []string{".json", ".yaml", ".yml"},
}

func invalidFile(method, format string, args ...any) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Loader", method, fmt.Sprintf(format, args...))
}

// checkPath accepts absolute paths and relative paths that stay below the
// working directory, with a supported extension.
func (lim limits) checkPath(path string) error {
	switch {
	case path == "":
		return invalidFile("checkPath", "empty config path")
	case len(path) > lim.pathLen:
		return invalidFile("checkPath", "config path longer than %d bytes", lim.pathLen)
	}

	if !filepath.IsAbs(path) {
		rel := filepath.Clean(path)
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return invalidFile("checkPath", "config path %s leaves the working directory", path)
		}
	}

	if ext := strings.ToLower(filepath.Ext(path)); !slices.Contains(lim.exts, ext) {
		return invalidFile("checkPath", "config file type %q is not one of %v", ext, lim.exts)
	}
	return nil
}

func (lim limits) readFile(path string) ([]byte, error) {
	if err := lim.checkPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "readFile", "stat "+path)
	}
	if !info.Mode().IsRegular() {
		return nil, invalidFile("readFile", "%s is not a regular file", path)
	}
	if info.Size() > lim.fileBytes {
		return nil, invalidFile("readFile", "%s is %d bytes, limit %d", path, info.Size(), lim.fileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "readFile", "read "+path)
	}
	return data, nil
}

// writeFile writes data readable by the owner only.
func (lim limits) writeFile(path string, data []byte) error {
	if err := lim.checkPath(path); err != nil {
		return err
	}
	if int64(len(data)) > lim.fileBytes {
		return invalidFile("writeFile", "encoded config is %d bytes, limit %d", len(data), lim.fileBytes)
	}
	return os.WriteFile(path, data, 0o600)
}

func (lim limits) checkEnv(key, value string) error {
	if len(value) > lim.envLen {
		return invalidFile("applyEnvOverrides", "%s is longer than %d bytes", key, lim.envLen)
	}
	if strings.IndexByte(value, 0) >= 0 {
		return invalidFile("applyEnvOverrides", "%s contains a NUL byte", key)
	}
	return nil
}

// checkDepth rejects decoded documents nested deeper than lim.depth.
func (lim limits) checkDepth(doc map[string]any) error {
	if d := nesting(doc); d > lim.depth {
		return invalidFile("loadRaw", "document nests %d levels, limit %d", d, lim.depth)
	}
	return nil
}

func nesting(v any) int {
	deepest := 0
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			deepest = max(deepest, nesting(child))
		}
	case []any:
		for _, child := range t {
			deepest = max(deepest, nesting(child))
		}
	default:
		return 0
	}
	return deepest + 1
}
