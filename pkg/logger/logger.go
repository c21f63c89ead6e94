// Package logger wraps zerolog with typed fields and optional aggregation
// of warnings and errors into periodic digests.
package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"`
	TimeFormat string `yaml:"time_format"`
	Service    string `yaml:"service" default:"aerotrend"`
}

type Logger struct {
	zl        zerolog.Logger
	collector *Collector
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// NewWriter logs JSON lines to w.
func NewWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}

	zctx := zerolog.New(out).Level(level).With().Timestamp().CallerWithSkipFrameCount(3)
	if cfg.Service != "" {
		zctx = zctx.Str("service", cfg.Service)
	}
	return &Logger{zl: zctx.Logger()}, nil
}

func openOutput(name string) (io.Writer, error) {
	switch name {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), msg, fields) }

func (l *Logger) Warn(msg string, fields ...Field) {
	l.emit(l.zl.Warn(), msg, fields)
	l.collect(zerolog.WarnLevel, msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.emit(l.zl.Error(), msg, fields)
	l.collect(zerolog.ErrorLevel, msg, fields)
}

func (l *Logger) emit(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		f.apply(e)
	}
	e.Msg(msg)
}

// collect records the entry in the digest, attributing it to the caller of
// Warn or Error.
func (l *Logger) collect(level zerolog.Level, msg string, fields []Field) {
	c := l.collector
	if c == nil {
		return
	}
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		if i := strings.LastIndex(file, "/AeroTrend/"); i >= 0 {
			file = file[i+len("/AeroTrend/"):]
		}
		caller = file + ":" + strconv.Itoa(line)
	}
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		values[f.Key] = f.plain()
	}
	c.Add(level.String(), msg, values, caller)
}

// With returns a child logger carrying fields on every entry. The child
// shares the parent's collector.
func (l *Logger) With(fields ...Field) *Logger {
	zctx := l.zl.With()
	for _, f := range fields {
		zctx = zctx.Interface(f.Key, f.plain())
	}
	return &Logger{zl: zctx.Logger(), collector: l.collector}
}

// AttachCollector starts aggregating warnings and errors, replacing any
// collector already attached. Only loggers derived afterwards share it.
func (l *Logger) AttachCollector(cfg CollectorConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewCollector(cfg)
}

// DetachCollector flushes and stops the collector.
func (l *Logger) DetachCollector() {
	if l.collector != nil {
		l.collector.Close()
		l.collector = nil
	}
}

// Field is a typed key/value pair.
type Field struct {
	Key   string
	Value any
	add   func(*zerolog.Event)
}

func (f Field) apply(e *zerolog.Event) {
	if f.add != nil {
		f.add(e)
		return
	}
	e.Interface(f.Key, f.Value)
}

func (f Field) plain() any {
	if err, ok := f.Value.(error); ok {
		return err.Error()
	}
	return f.Value
}

func String(k, v string) Field {
	return Field{Key: k, Value: v, add: func(e *zerolog.Event) { e.Str(k, v) }}
}

func Strings(k string, v []string) Field {
	return Field{Key: k, Value: v, add: func(e *zerolog.Event) { e.Strs(k, v) }}
}

func Int(k string, v int) Field {
	return Field{Key: k, Value: v, add: func(e *zerolog.Event) { e.Int(k, v) }}
}

func Int64(k string, v int64) Field {
	return Field{Key: k, Value: v, add: func(e *zerolog.Event) { e.Int64(k, v) }}
}

func Uint64(k string, v uint64) Field {
	return Field{Key: k, Value: v, add: func(e *zerolog.Event) { e.Uint64(k, v) }}
}

func Float64(k string, v float64) Field {
	return Field{Key: k, Value: v, add: func(e *zerolog.Event) { e.Float64(k, v) }}
}

func Bool(k string, v bool) Field {
	return Field{Key: k, Value: v, add: func(e *zerolog.Event) { e.Bool(k, v) }}
}

// Duration logs whole milliseconds.
func Duration(k string, v time.Duration) Field {
	ms := v.Milliseconds()
	return Field{Key: k, Value: ms, add: func(e *zerolog.Event) { e.Int64(k, ms) }}
}

func Error(err error) Field {
	return Field{Key: zerolog.ErrorFieldName, Value: err, add: func(e *zerolog.Event) { e.Err(err) }}
}

func Any(k string, v any) Field {
	return Field{Key: k, Value: v}
}
