package xlog

import (
	"fmt"
	"time"

	logstash "github.com/bshuster-repo/logrus-logstash-hook"
	"github.com/sirupsen/logrus"
)

// Config mirrors the logging leaf of the tool's YAML configuration.
type Config struct {
	Level     string
	Formatter string
	Fields    map[string]any
}

const defaultFormatter = "text"

// Configure builds the process-wide default logger from cfg, matching the
// registry server's configureLogging: level, one of three formatters, and
// static fields merged onto every line.
func Configure(cfg Config) error {
	level, err := logrus.ParseLevel(orDefault(cfg.Level, "info"))
	if err != nil {
		return fmt.Errorf("xlog: invalid log level %q: %w", cfg.Level, err)
	}
	logrus.SetLevel(level)

	formatter := orDefault(cfg.Formatter, defaultFormatter)
	switch formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:   time.RFC3339Nano,
			DisableHTMLEscape: true,
		})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	case "logstash":
		logrus.SetFormatter(&logstash.LogstashFormatter{
			Formatter: &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano},
		})
	default:
		return fmt.Errorf("xlog: unsupported log formatter %q", formatter)
	}

	entry := logrus.NewEntry(logrus.StandardLogger())
	if len(cfg.Fields) > 0 {
		entry = entry.WithFields(cfg.Fields)
	}
	SetDefault(entry)
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
