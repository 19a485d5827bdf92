package cache

import (
	"path"
	"strings"

	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/opencontainers/go-digest"
)

// Number of hex characters of the path digest kept in a key.
const keyHashLen = 16

// Longest slug kept in front of the hash.
const maxSlugLen = 32

// Derives the slot key of an in-environment path.
//
// The key is a pure function of the cleaned path, so "/deps" and "/deps/"
// share a slot and the same path always maps to the same key on every host
// and in every process. It has the form "<slug>-<hash>", where the slug is
// the sanitised last path element (for readable listings) and the hash is
// the first 16 hex characters of the SHA-256 of the cleaned path. The key is
// a single file name, safe on any filesystem.
//
// Empty and relative paths are rejected with [ErrConfig].
func Key(p string) (string, error) {
	if p == "" {
		return "", fault.Wrapf(ErrConfig, "cache path is empty")
	}
	if !path.IsAbs(p) {
		return "", fault.Wrapf(ErrConfig, "cache path %q is not absolute", p)
	}

	clean := path.Clean(p)
	sum := digest.SHA256.FromString(clean).Encoded()

	return slug(clean) + "-" + sum[:keyHashLen], nil
}

// Returns a file-name-safe rendition of the last element of a clean path.
func slug(clean string) string {
	base := path.Base(clean)
	if base == "/" {
		return "root"
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}

	s := strings.Trim(b.String(), "_-")
	if s == "" {
		return "dir"
	}
	return s
}
