// internal/logger/logger.go
// Component scoped zerolog wrapper with console or JSON output and optional
// rotating file output.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds configuration for the logger
type LogConfig struct {
	Level      string `toml:"level"` // debug, info, warn, error, fatal
	LogToFile  bool   `toml:"log_to_file"`
	LogToJSON  bool   `toml:"log_to_json"`
	FilePath   string `toml:"file_path"`
	MaxSize    int    `toml:"max_size"`    // megabytes
	MaxBackups int    `toml:"max_backups"` // number of backups
	MaxAge     int    `toml:"max_age"`     // days
	Compress   bool   `toml:"compress"`    // compress old log files
}

// DefaultLogConfig returns a default logging configuration
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogToFile:  false,
		LogToJSON:  false,
		FilePath:   "chatwire.log",
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
}

var levelColors = map[string]string{
	"DEBUG": "\033[36m",
	"INFO":  "\033[32m",
	"WARN":  "\033[33m",
	"ERROR": "\033[31m",
	"FATAL": "\033[35m",
}

func formatLevel(i interface{}) string {
	level := strings.ToUpper(fmt.Sprintf("%s", i))
	color, ok := levelColors[level]
	if !ok {
		color = "\033[37m"
	}
	return color + "[ " + fmt.Sprintf("%-5s", level) + " ]\033[0m"
}

func colored(code string) func(interface{}) string {
	return func(i interface{}) string {
		return fmt.Sprintf("\033[%sm%s\033[0m", code, i)
	}
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			"component",
			zerolog.MessageFieldName,
		},
		FieldsExclude:   []string{"component"},
		FormatLevel:     formatLevel,
		FormatTimestamp: colored("90"),
		FormatMessage:   colored("1"),
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("\033[34m%s\033[0m: ", i)
		},
		FormatFieldValue: colored("37"),
		FormatErrFieldName: func(i interface{}) string {
			return fmt.Sprintf("\033[31m%s\033[0m: ", i)
		},
		FormatErrFieldValue: colored("31"),
	}
}

// Writer builds the output described by config on top of stdout.
func Writer(config LogConfig, stdout io.Writer) io.Writer {
	var writers []io.Writer
	if config.LogToJSON {
		writers = append(writers, stdout)
	} else {
		writers = append(writers, newConsoleWriter(stdout))
	}
	if config.LogToFile && config.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	if len(writers) == 1 {
		return writers[0]
	}
	return io.MultiWriter(writers...)
}

// InitLogger initializes the global zerolog logger with the given configuration
func InitLogger(config LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(Writer(config, os.Stdout)).With().Timestamp().Logger()
}

// Logger is a zerolog logger tagged with a component name.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger derives a component logger from the global logger.
func NewLogger(component string) *Logger {
	return &Logger{
		logger: log.With().Str("component", component).Logger(),
	}
}

// New wraps an explicit zerolog logger, mostly for tests.
func New(l zerolog.Logger, component string) *Logger {
	return &Logger{logger: l.With().Str("component", component).Logger()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		logger: ctx.Logger(),
	}
}

// WithError attaches err under zerolog's error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string)                       { l.logger.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, v ...interface{}) { l.logger.Debug().Msgf(format, v...) }
func (l *Logger) Info(msg string)                        { l.logger.Info().Msg(msg) }
func (l *Logger) Infof(format string, v ...interface{})  { l.logger.Info().Msgf(format, v...) }
func (l *Logger) Warn(msg string)                        { l.logger.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, v ...interface{})  { l.logger.Warn().Msgf(format, v...) }
func (l *Logger) Error(msg string)                       { l.logger.Error().Msg(msg) }
func (l *Logger) Errorf(format string, v ...interface{}) { l.logger.Error().Msgf(format, v...) }
func (l *Logger) Fatal(msg string)                       { l.logger.Fatal().Msg(msg) }
func (l *Logger) Fatalf(format string, v ...interface{}) { l.logger.Fatal().Msgf(format, v...) }
