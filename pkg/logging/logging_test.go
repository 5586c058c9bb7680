package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"dcmvolume/pkg/config"
)

func TestSetupLevels(t *testing.T) {
	cfg := config.DefaultConfig()

	closer := Setup(cfg)
	defer closer.Close()
	if log.GetLevel() != log.InfoLevel {
		t.Errorf("Expected info level, got %v", log.GetLevel())
	}

	cfg.Output.Verbose = true
	Setup(cfg)
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("Expected debug level, got %v", log.GetLevel())
	}
}

func TestSetupLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	cfg := config.DefaultConfig()
	cfg.Output.LogFile = path

	closer := Setup(cfg)
	log.WithField("series", "1.2.3").Info("assembled")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	log.SetOutput(os.Stderr)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Log file was not written: %v", err)
	}
	if !strings.Contains(string(data), "assembled") || !strings.Contains(string(data), "series=1.2.3") {
		t.Errorf("Unexpected log content: %q", data)
	}
}
