// Package obslog configures the engine's structured logger.
//
// cmd/foldctl logs a structured "run complete" line to stderr when a run
// finishes, and an error that ends a command is printed to stderr. The
// replay report is printed to stdout, and nothing is logged when a
// contract is loaded or a run halts early. Full per-step detail never
// goes through the logger — that lives only in the ledger.
package obslog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger writing text-formatted lines to out (stderr in
// production, a buffer in tests). level is parsed with logrus.ParseLevel;
// an unrecognized level falls back to Info rather than failing the run.
func New(out io.Writer, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// Default returns a logger at info level writing to os.Stderr, the
// configuration cmd/foldctl uses unless FOLDCTL_LOG_LEVEL overrides it.
func Default() *logrus.Logger {
	level := os.Getenv("FOLDCTL_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return New(os.Stderr, level)
}
