package runtime

import (
	"archive/tar"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/cruxbuild/internal/fault"
	securejoin "github.com/cyphar/filepath-securejoin"
)

// Reports whether a path (slash-separated, relative to the archived
// directory) should be left out of an archive.
type Filter func(rel string, isDir bool) bool

// Writes a single file to a tar writer with the given archive name and mode.
func writeFileToTar(tw *tar.Writer, hostPath, name string, mode fs.FileMode) error {
	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	if mode != 0 {
		header.Mode = int64(mode.Perm())
	}
	anonymize(header)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

// Writes a directory tree to a tar writer rooted at the given archive prefix.
//
// Entries rejected by filter are skipped; rejected directories are not
// descended into.
func writeDirToTar(tw *tar.Writer, hostDir, prefix string, filter Filter) error {
	return filepath.WalkDir(hostDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(hostDir, p)
		if err != nil {
			return err
		}

		if filter != nil && relPath != "." && filter(filepath.ToSlash(relPath), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		archivePath := filepath.ToSlash(filepath.Join(prefix, relPath))
		return writeTarEntry(tw, p, archivePath, d)
	})
}

// Writes a single file, directory or symbolic link entry to a tar writer.
func writeTarEntry(tw *tar.Writer, hostPath, archivePath string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(hostPath); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = archivePath
	anonymize(header)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(hostPath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	}

	return nil
}

// Makes extracted files owned by the extracting user (root in the
// container) rather than the host user's IDs.
func anonymize(h *tar.Header) {
	h.Uid, h.Gid = 0, 0
	h.Uname, h.Gname = "", ""
}

// Extracts a tar stream into dest on the host.
//
// Entry names must start with the element strip, which is removed; the
// entry named exactly strip is dest itself. An empty strip keeps names as
// they are. Regular files keep their
// permission bits and modification time. Directories, symbolic links and
// hard links are recreated; other entry types are skipped. Every path is
// resolved inside dest, so an archive cannot write outside it.
func extractTar(r io.Reader, dest, strip string) error {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fault.Wrap(ErrArchive, err)
		}

		rel, ok := stripPrefix(header.Name, strip)
		if !ok {
			return fault.Wrapf(ErrArchive, "unexpected entry %q outside %q", header.Name, strip)
		}
		if rel == "" {
			continue
		}

		target, err := securejoin.SecureJoin(dest, rel)
		if err != nil {
			return fault.Wrap(ErrArchive, err)
		}

		if err := extractEntry(tr, header, dest, target, strip); err != nil {
			return fault.Wrap(ErrArchive, err)
		}
	}
}

// Creates the host file for a single tar entry.
func extractEntry(tr *tar.Reader, header *tar.Header, dest, target, strip string) error {
	mode := fs.FileMode(header.Mode).Perm()

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, mode|0o700)

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		if err := os.Chmod(target, mode); err != nil {
			return err
		}
		return os.Chtimes(target, header.ModTime, header.ModTime)

	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		os.Remove(target)
		return os.Symlink(header.Linkname, target)

	case tar.TypeLink:
		rel, ok := stripPrefix(header.Linkname, strip)
		if !ok {
			return nil
		}
		source, err := securejoin.SecureJoin(dest, rel)
		if err != nil {
			return err
		}
		os.Remove(target)
		return os.Link(source, target)
	}

	return nil
}

// Removes the leading element strip from a tar entry name.
func stripPrefix(name, strip string) (string, bool) {
	name = path.Clean(strings.TrimPrefix(name, "./"))
	if strip == "" {
		return name, name != ".." && !strings.HasPrefix(name, "../")
	}
	if name == strip {
		return "", true
	}
	rel, ok := strings.CutPrefix(name, strip+"/")
	return rel, ok
}
