package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// ErrInvalidCacheName is returned for cache file names that would escape the
// cache directory
var ErrInvalidCacheName = errors.New("invalid cache file name")

// ResolveCacheFile returns the absolute path of a release file inside cacheDir
func ResolveCacheFile(cacheDir, cacheFileName string) (string, error) {
	name := strings.TrimSpace(cacheFileName)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidCacheName, cacheFileName)
	}
	if strings.ContainsAny(name, "/\\") || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCacheName, cacheFileName)
	}
	abs, err := filepath.Abs(filepath.Join(cacheDir, name))
	if err != nil {
		return "", err
	}
	return abs, nil
}

// SniffFileType reads the magic header of path and returns the detected
// extension and MIME type. Unknown content returns empty strings.
func SniffFileType(path string) (ext string, mime string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	header := make([]byte, 262)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", "", fmt.Errorf("reading header: %w", err)
	}
	header = header[:n]

	kind, _ := filetype.Match(header)
	if kind == filetype.Unknown {
		return "", "", nil
	}
	return kind.Extension, kind.MIME.Value, nil
}

// IsPackageArchive reports whether path looks like an APK (a zip container)
func IsPackageArchive(path string) (bool, error) {
	ext, _, err := SniffFileType(path)
	if err != nil {
		return false, err
	}
	// jar/apk are zip containers; filetype may report either
	switch ext {
	case "zip", "jar", "apk":
		return true, nil
	}
	return false, nil
}
