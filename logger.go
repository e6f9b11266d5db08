package ezib

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/scmhub/ibapi"
)

// log is the package logger. The default level is warn so that informational
// output stays quiet unless the embedding application opts in.
var log = zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

// Logger returns the package logger.
func Logger() zerolog.Logger {
	return log
}

// SetLogger replaces the package logger. The same logger is handed to the
// wrapped ibapi client so both layers write to the same sink.
func SetLogger(logger zerolog.Logger) {
	log = logger
	ibapi.SetLogger(logger)
}

// SetLogLevel sets the log level from a zerolog numeric level.
// logLevel can be:
// -1 = trace   // zerolog.TraceLevel
//
//	0 = debug   // zerolog.DebugLevel
//	1 = info    // zerolog.InfoLevel
//	2 = warn    // zerolog.WarnLevel
//	3 = error   // zerolog.ErrorLevel
//	4 = fatal   // zerolog.FatalLevel
//	5 = panic   // zerolog.PanicLevel
func SetLogLevel(logLevel int) {
	log = log.Level(zerolog.Level(logLevel))
	ibapi.SetLogLevel(logLevel)
}

// SetConsoleWriter will set pretty log to the console. For development only.
func SetConsoleWriter() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	log = log.Output(output).With().Caller().Logger()
	ibapi.SetConsoleWriter()
}
