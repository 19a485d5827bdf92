package fileinfo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Name of the sidecar file written at the root of a snapshotted directory.
const SidecarName = "restore_file_info.csv"

// Columns of the sidecar, in write order. mtime_nanos was added after the
// first three and is optional when reading.
var header = []string{"file", "mtime_seconds", "mode", "hash", "mtime_nanos"}

// Serializes a sidecar as CSV with a header row.
func WriteSidecar(w io.Writer, sc Sidecar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, info := range sc {
		record := []string{
			info.File,
			strconv.FormatInt(info.Mtime.Unix(), 10),
			strconv.FormatUint(uint64(info.Mode.Perm()), 10),
			info.Hash,
			strconv.Itoa(info.Mtime.Nanosecond()),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Parses a sidecar written by [WriteSidecar].
//
// Columns are located by header name. The mode column may hold either bare
// permission bits or a full st_mode value; only the permission bits are
// kept.
func ReadSidecar(r io.Reader) (Sidecar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	cols := make(map[string]int, len(head))
	for i, name := range head {
		cols[name] = i
	}
	for _, required := range header[:4] {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("sidecar is missing column %q", required)
		}
	}

	var sc Sidecar
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		info, err := parseRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("sidecar line %d: %w", line, err)
		}
		sc = append(sc, info)
	}

	return sc, nil
}

// Converts one CSV record to a [FileInfo].
func parseRecord(record []string, cols map[string]int) (FileInfo, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	secs, err := strconv.ParseInt(field("mtime_seconds"), 10, 64)
	if err != nil {
		return FileInfo{}, err
	}

	var nanos int64
	if raw := field("mtime_nanos"); raw != "" {
		if nanos, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return FileInfo{}, err
		}
	}

	mode, err := strconv.ParseUint(field("mode"), 10, 32)
	if err != nil {
		return FileInfo{}, err
	}

	return FileInfo{
		File:  field("file"),
		Mtime: time.Unix(secs, nanos),
		Mode:  fs.FileMode(mode).Perm(),
		Hash:  field("hash"),
	}, nil
}

// Snapshots root and writes the sidecar into it.
func Dump(root string, opts SnapshotOptions) (Sidecar, error) {
	sc, err := Snapshot(root, opts)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(root, SidecarName))
	if err != nil {
		return nil, err
	}

	if err := WriteSidecar(f, sc); err != nil {
		f.Close()
		return nil, err
	}
	return sc, f.Close()
}

// Reads the sidecar stored in root and restores from it.
//
// A missing sidecar means the directory was never snapshotted (a cold
// cache); this is not an error and nothing is changed.
func Apply(root string) (RestoreStats, error) {
	f, err := os.Open(filepath.Join(root, SidecarName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return RestoreStats{}, nil
		}
		return RestoreStats{}, err
	}
	defer f.Close()

	sc, err := ReadSidecar(f)
	if err != nil {
		return RestoreStats{}, err
	}
	return Restore(root, sc)
}
