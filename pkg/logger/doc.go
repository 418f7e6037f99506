// Package logger provides structured logging for wxexport.
//
// It wraps zerolog behind a small Logger interface so components can be
// handed a TestLogger in unit tests.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	logger.WithField("account", name).Info("Collecting catalog")
//
// Console output is written to stderr. When LoggingConfig.File is set,
// records are also appended to that file.
package logger
