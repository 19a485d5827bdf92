package main

import (
	"log/slog"
	"os"

	"github.com/cruciblehq/cruxbuild/internal/toolcli"
)

// The entry point for rfi, the in-environment cache tool.
func main() {
	if err := toolcli.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
