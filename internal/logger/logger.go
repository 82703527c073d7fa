package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
)

// Setup points the global logger at the console and at a daily log file.
// The returned closer releases the log file.
func Setup(cfg *config.LogConfig) (io.Closer, error) {
	return setup(cfg, true)
}

// SetupFile logs to the daily file only, for commands that own the terminal.
func SetupFile(cfg *config.LogConfig) (io.Closer, error) {
	return setup(cfg, false)
}

func setup(cfg *config.LogConfig, withConsole bool) (io.Closer, error) {
	consoleLevel, err := zerolog.ParseLevel(cfg.ConsoleLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid console log level %q: %w", cfg.ConsoleLevel, err)
	}
	fileLevel, err := zerolog.ParseLevel(cfg.FileLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid file log level %q: %w", cfg.FileLevel, err)
	}

	daily, err := NewDailyFile(cfg.Dir, "app")
	if err != nil {
		return nil, err
	}

	writers := []io.Writer{levelWriter{Writer: daily, min: fileLevel}}
	globalLevel := fileLevel
	if withConsole {
		console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
		writers = append(writers, levelWriter{Writer: console, min: consoleLevel})
		globalLevel = min(consoleLevel, fileLevel)
	}
	writer := zerolog.MultiLevelWriter(writers...)

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(globalLevel)
	log.Logger = zerolog.New(writer).With().Timestamp().Caller().Logger()
	return daily, nil
}

// SetupConsole logs to stderr only, leaving stdout to the command output.
func SetupConsole(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

// levelWriter drops events below min so each sink keeps its own threshold.
type levelWriter struct {
	io.Writer
	min zerolog.Level
}

func (w levelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < w.min {
		return len(p), nil
	}
	return w.Write(p)
}
