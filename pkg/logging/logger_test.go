package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo || cfg.Pretty || cfg.Async {
		t.Errorf("DefaultConfig() = %+v, want info, JSON, synchronous", cfg)
	}
	if cfg.MaxSizeMB != 50 || cfg.MaxBackups != 3 || cfg.MaxAgeDays != 14 {
		t.Errorf("rotation = %d MB / %d backups / %d days, want 50/3/14",
			cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	emit := func(logger zerolog.Logger) {
		logger.Debug().Msg("debug line")
		logger.Info().Msg("info line")
		logger.Warn().Msg("warn line")
		logger.Error().Msg("error line")
	}

	tests := []struct {
		level LogLevel
		want  []string
		skip  []string
	}{
		{LevelDebug, []string{"debug line", "info line", "warn line", "error line"}, nil},
		{LevelInfo, []string{"info line", "warn line", "error line"}, []string{"debug line"}},
		{LevelWarn, []string{"warn line", "error line"}, []string{"debug line", "info line"}},
		{LevelError, []string{"error line"}, []string{"debug line", "info line", "warn line"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger, _ := Setup(Config{Level: tt.level, Output: buf})
			emit(logger)

			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q", s)
				}
			}
			for _, s := range tt.skip {
				if strings.Contains(out, s) {
					t.Errorf("output contains filtered %q", s)
				}
			}
		})
	}
}

func TestSetup_JSONFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := Setup(Config{Level: LevelInfo, Output: buf})
	logger.Info().Str("job_id", "JOB7").Int("poll", 3).Msg("Job status")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "info" || entry["message"] != "Job status" || entry["job_id"] != "JOB7" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry has no timestamp")
	}
}

func TestSetup_Pretty(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})
	logger.Info().Str("job_id", "JOB7").Msg("Search complete")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Errorf("pretty output looks like JSON: %q", out)
	}
	if !strings.Contains(out, "Search complete") || !strings.Contains(out, "JOB7") {
		t.Errorf("pretty output = %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input LogLevel
		want  zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("paginator")
	logger.Info().Msg("Round complete")

	out := buf.String()
	if !strings.Contains(out, `"component":"paginator"`) || !strings.Contains(out, "Round complete") {
		t.Errorf("output = %q, want component field and message", out)
	}
}

func TestSetup_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sumo.log")

	logger, closer := Setup(Config{Level: LevelInfo, FilePath: path})
	logger.Info().Str("job_id", "JOB1").Msg("file message")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "file message") || !strings.Contains(string(data), "JOB1") {
		t.Errorf("log file = %q, want the message", data)
	}
}

func TestSetup_AsyncFlushesOnClose(t *testing.T) {
	buf := &syncBuffer{}

	logger, closer := Setup(Config{Level: LevelDebug, Output: buf, Async: true})
	for i := range 10 {
		logger.Debug().Int("i", i).Msg("async message")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := strings.Count(buf.String(), "async message"); got != 10 {
		t.Errorf("messages written = %d, want 10", got)
	}
}
