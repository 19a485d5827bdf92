// Configures process-wide structured logging.
//
// Console output is human-readable text on stderr. When a log file is
// configured, records are also written to it as JSON through a size-rotated
// writer, so a long-running CI host keeps a bounded history of builds.
//
// The level is chosen from the quiet and debug switches: debug wins over
// quiet, and neither yields info.
//
//	logger, closer, err := logging.Setup(logging.Options{
//	    Level: logging.Level(debug, quiet),
//	    File:  cfg.Log.File,
//	})
//	if err != nil {
//	    return err
//	}
//	defer closer.Close()
//	slog.SetDefault(logger)
package logging
