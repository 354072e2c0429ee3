package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otellogrus"
)

// Options How the logger should be set up
type Options struct {
	// Level One of the logrus level names e.g. "info" or "debug"
	Level string

	// JSON Emit JSON with a GCP severity field instead of text
	JSON bool

	// Fields Added to every log entry e.g. the run ID
	Fields log.Fields

	// Out Where log lines are written, defaults to stdout
	Out io.Writer
}

// Configure Applies the options to the logger and attaches log entries to
// the active span
func Configure(logger *log.Logger, opts Options) error {
	if logger == nil {
		return nil
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	level := opts.Level
	if level == "" {
		level = "info"
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("couldn't parse `log` (%q): %w", level, err)
	}
	logger.SetLevel(lvl)

	if opts.JSON {
		ConfigureLogrusJSON(logger)
	} else {
		logger.SetFormatter(&log.TextFormatter{
			DisableTimestamp: true,
		})
	}

	if len(opts.Fields) > 0 {
		logger.AddHook(FieldsHook{Fields: opts.Fields})
	}

	// only attach entries up to the configured level to spans
	logger.AddHook(otellogrus.NewHook(otellogrus.WithLevels(
		log.AllLevels[:lvl+1]...,
	)))

	return nil
}

// ConfigureLogrusJSON sets the logger to emit JSON logs with a GCP severity field.
func ConfigureLogrusJSON(logger *log.Logger) {
	if logger == nil {
		return
	}

	logger.SetFormatter(&log.JSONFormatter{})
	logger.AddHook(SeverityHook{})
}

// SeverityHook adds a GCP-compatible severity field to log entries.
type SeverityHook struct{}

func (SeverityHook) Levels() []log.Level {
	return log.AllLevels
}

func (SeverityHook) Fire(entry *log.Entry) error {
	if entry == nil {
		return nil
	}
	if _, ok := entry.Data["severity"]; ok {
		return nil
	}

	entry.Data["severity"] = severityForLevel(entry.Level)
	return nil
}

func severityForLevel(level log.Level) string {
	switch level {
	case log.PanicLevel:
		return "EMERGENCY"
	case log.FatalLevel:
		return "CRITICAL"
	case log.ErrorLevel:
		return "ERROR"
	case log.WarnLevel:
		return "WARNING"
	case log.InfoLevel:
		return "INFO"
	case log.DebugLevel, log.TraceLevel:
		return "DEBUG"
	default:
		return "DEFAULT"
	}
}

// FieldsHook Adds the same fields to every entry, without overwriting fields
// that the entry already has
type FieldsHook struct {
	Fields log.Fields
}

func (FieldsHook) Levels() []log.Level {
	return log.AllLevels
}

func (h FieldsHook) Fire(entry *log.Entry) error {
	if entry == nil {
		return nil
	}

	for k, v := range h.Fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}

	return nil
}
