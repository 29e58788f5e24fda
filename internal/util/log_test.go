package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitLoggerDefault(t *testing.T) {
	logger = nil

	if err := InitLogger("", "console", ""); err != nil {
		t.Fatalf("InitLogger() error = %v", err)
	}
	if logger == nil {
		t.Error("logger should not be nil after initialization")
	}
}

func TestInitLoggerJSONFormat(t *testing.T) {
	logger = nil

	if err := InitLogger("info", "json", ""); err != nil {
		t.Fatalf("InitLogger() error = %v", err)
	}
	Info("json formatted log")
}

func TestInitLoggerWithFile(t *testing.T) {
	logger = nil

	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	if err := InitLogger("info", "console", logFile); err != nil {
		t.Fatalf("InitLogger() error = %v", err)
	}

	Info("test log to file")
	Infof("test %s to file", "formatted log")

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Error("log file should exist")
	}
}

func TestInitLoggerInvalidFile(t *testing.T) {
	logger = nil

	if err := InitLogger("info", "console", "/nonexistent/path/test.log"); err == nil {
		t.Error("InitLogger() should return error for invalid file path")
	}
}

func TestLogReturnsDefaultLogger(t *testing.T) {
	logger = nil

	if Log() == nil {
		t.Error("Log() should return a logger even when not initialized")
	}
}

func TestLogReturnsInitializedLogger(t *testing.T) {
	logger = nil
	InitLogger("info", "console", "")

	l := Log()
	if l == nil {
		t.Error("Log() should return initialized logger")
	}
	if l != logger {
		t.Error("Log() should return the same logger instance")
	}
}

func TestAllLogLevels(t *testing.T) {
	levels := []string{"debug", "info", "warn", "error", "unknown"}

	for _, level := range levels {
		t.Run(level, func(t *testing.T) {
			logger = nil
			if err := InitLogger(level, "console", ""); err != nil {
				t.Fatalf("InitLogger(%q) error = %v", level, err)
			}

			Debug("debug")
			Debugf("debug %s", "f")
			Info("info")
			Infof("info %s", "f")
			Warn("warn")
			Warnf("warn %s", "f")
			Error("error")
			Errorf("error %s", "f")
		})
	}
}

func TestMultipleLoggerInitialization(t *testing.T) {
	logger = nil

	if err := InitLogger("info", "console", ""); err != nil {
		t.Fatalf("first InitLogger() error = %v", err)
	}
	firstLogger := logger

	if err := InitLogger("debug", "json", ""); err != nil {
		t.Fatalf("second InitLogger() error = %v", err)
	}
	if logger == firstLogger {
		t.Error("logger should be replaced after re-initialization")
	}
}
