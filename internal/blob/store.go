// Package blob stores uploaded document files on the local filesystem or in S3.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrInvalidKey is returned for empty keys, absolute keys, or keys that escape the store root.
var ErrInvalidKey = errors.New("blob: invalid key")

// Store persists document content. Put returns an opaque reference that Delete accepts.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (ref string, err error)
	Delete(ctx context.Context, ref string) error
}

// CleanKey normalizes key to a slash-separated relative path and rejects traversal.
func CleanKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean(key)
	if cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// SafeName reduces a client-supplied file name to its base name with unsafe characters replaced.
func SafeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == ':' || r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ". ")
	if out == "" {
		return "file"
	}
	return out
}
