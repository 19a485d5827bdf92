// Package logfields defines canonical slog attribute keys so cache and build
// logs stay greppable across packages.
package logfields

import "log/slog"

const (
	KeyEntry     = "entry"
	KeyKey       = "key"
	KeyNamespace = "namespace"
	KeyTarget    = "target"
	KeyPath      = "path"
	KeyStep      = "step"
	KeyDuration  = "duration"
	KeyError     = "error"
)

func Entry(path string) slog.Attr    { return slog.String(KeyEntry, path) }
func Key(key string) slog.Attr       { return slog.String(KeyKey, key) }
func Namespace(ns string) slog.Attr  { return slog.String(KeyNamespace, ns) }
func Target(t string) slog.Attr      { return slog.String(KeyTarget, t) }
func Path(p string) slog.Attr        { return slog.String(KeyPath, p) }
func Step(s string) slog.Attr        { return slog.String(KeyStep, s) }
func Duration(d any) slog.Attr       { return slog.Any(KeyDuration, d) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
