// Parses flags and runs cruxbuild commands.
//
// The host binary accepts the following global flags:
//
//	-q, --quiet       Suppress informational output.
//	-v, --verbose     Enable verbose output.
//	-d, --debug       Enable debug output.
//	-C, --project     Project root. Defaults to the working directory.
//	-c, --config      Configuration file, replacing the global and local files.
//	    --log-file    Also write JSON logs to this file.
//	    --no-cache    Build without restoring or persisting the directory cache.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// configuration is loaded and the global logger is rebuilt to reflect the
// final level, verbosity and log file before the command runs.
package cli
