// Package logging configures the process-wide logger.
package logging

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	log "github.com/sirupsen/logrus"

	"dcmvolume/pkg/config"
)

// Setup applies the output section of cfg to the standard logrus logger and
// returns a closer for the log file, if any.
func Setup(cfg *config.Config) io.Closer {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if cfg.Output.Verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if cfg.Output.LogFile == "" {
		log.SetOutput(os.Stderr)
		log.Debug("Sending log messages to stderr since no log file specified")
		return nopCloser{}
	}

	l := &lumberjack.Logger{
		Filename: cfg.Output.LogFile,
		MaxSize:  cfg.Output.MaxLogSize, // megabytes
		MaxAge:   cfg.Output.MaxLogAge,  // days
	}
	log.SetOutput(l)
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
