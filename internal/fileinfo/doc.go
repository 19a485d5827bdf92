// Package fileinfo captures and reapplies file modification times.
//
// Incremental build tools decide what to recompile by comparing timestamps.
// Copying a directory into a fresh build environment resets those
// timestamps, so a cached build-output directory would be rebuilt from
// scratch on every run. A [Sidecar] records, for every regular file under a
// directory, its modification time, permission bits and content digest.
// [Restore] reapplies the recorded time and mode only to files whose content
// still matches the recorded digest; changed files keep their current
// timestamp so the build tool rebuilds them.
//
// The sidecar is stored inside the directory it describes, as
// "restore_file_info.csv", so it travels with the directory wherever the
// directory is copied:
//
//	sc, err := fileinfo.Dump("/app/target", fileinfo.SnapshotOptions{})
//	...
//	stats, err := fileinfo.Apply("/app/target")
package fileinfo
