package cachekey

import (
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"
)

const (
	pathSeparator = "\t"
	sizeSeparator = ":"
)

// Version identifies one version of a file on disk.
type Version struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// VersionOf returns the version of the file at path with the given metadata.
func VersionOf(path string, info fs.FileInfo) Version {
	return Version{Path: path, Size: info.Size(), ModTime: info.ModTime()}
}

// Prefix gets the key prefix shared by all versions of the file at path.
// The tab separator cannot be confused with a longer path sharing the same
// leading bytes, since a tab directly after the path is part of every key.
func Prefix(path string) string {
	return path + pathSeparator
}

// Key returns the store key for the version.
func (v Version) Key() string {
	return Prefix(v.Path) + strconv.FormatInt(v.Size, 10) + sizeSeparator + strconv.FormatInt(v.ModTime.UnixNano(), 10)
}

// Weak returns a validator derived from size and mtime only, for use when
// the content hash is not available.
func (v Version) Weak() string {
	return strconv.FormatInt(v.Size, 36) + "-" + strconv.FormatInt(v.ModTime.UnixNano(), 36)
}

// ParseKey returns the version a key was generated from.
func ParseKey(key string) (Version, error) {
	idx := strings.LastIndex(key, pathSeparator)
	if idx < 0 {
		return Version{}, fmt.Errorf("Malformed key: %q", key)
	}
	size, mtime, found := strings.Cut(key[idx+1:], sizeSeparator)
	if !found {
		return Version{}, fmt.Errorf("Malformed key: %q", key)
	}
	s, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return Version{}, fmt.Errorf("Malformed key size: %w", err)
	}
	m, err := strconv.ParseInt(mtime, 10, 64)
	if err != nil {
		return Version{}, fmt.Errorf("Malformed key mtime: %w", err)
	}
	return Version{Path: key[:idx], Size: s, ModTime: time.Unix(0, m)}, nil
}
