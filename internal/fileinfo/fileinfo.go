package fileinfo

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/opencontainers/go-digest"
)

// Recorded metadata of a single regular file.
type FileInfo struct {
	File  string      // Slash-separated path relative to the snapshot root.
	Mtime time.Time   // Modification time.
	Mode  fs.FileMode // Permission bits.
	Hash  string      // Hex-encoded SHA-256 of the file content.
}

// Metadata of every regular file under a directory, in walk order.
type Sidecar []FileInfo

// Controls which files are captured by [Snapshot].
type SnapshotOptions struct {

	// Reports whether a path (slash-separated, relative to the root) should
	// be left out. Ignored directories are not descended into.
	Ignore func(rel string, isDir bool) bool
}

// Counts of what [Restore] did.
type RestoreStats struct {
	Applied  int // Files whose time and mode were reapplied.
	Modified int // Files whose content no longer matches the digest.
	Missing  int // Recorded files that no longer exist.
}

// Records the metadata of every regular file under root.
//
// Symbolic links and special files are skipped. The sidecar file itself is
// never recorded.
func Snapshot(root string, opts SnapshotOptions) (Sidecar, error) {
	var sc Sidecar

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if opts.Ignore != nil && opts.Ignore(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || rel == SidecarName {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		hash, err := HashFile(path)
		if err != nil {
			return err
		}

		sc = append(sc, FileInfo{
			File:  rel,
			Mtime: info.ModTime(),
			Mode:  info.Mode().Perm(),
			Hash:  hash,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sc, nil
}

// Reapplies recorded modification times and permission bits under root.
//
// A file is touched only when its current content digest equals the
// recorded one. Entries that resolve outside root are rejected.
func Restore(root string, sc Sidecar) (RestoreStats, error) {
	var stats RestoreStats

	for _, info := range sc {
		path, err := securejoin.SecureJoin(root, filepath.FromSlash(info.File))
		if err != nil {
			return stats, err
		}

		hash, err := HashFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				stats.Missing++
				continue
			}
			return stats, err
		}

		if hash != info.Hash {
			stats.Modified++
			continue
		}

		if err := os.Chmod(path, info.Mode.Perm()); err != nil {
			return stats, err
		}
		if err := os.Chtimes(path, info.Mtime, info.Mtime); err != nil {
			return stats, err
		}
		stats.Applied++
	}

	return stats, nil
}

// Returns the hex-encoded SHA-256 digest of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return "", err
	}
	return d.Encoded(), nil
}
