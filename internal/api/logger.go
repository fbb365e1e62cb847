package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/AbuAli85/business-services-hub-sub014/internal/config"
	"github.com/sirupsen/logrus"
)

const serviceName = "services-hub-progress"

const logTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// NewLoggerFromConfig 根据配置创建日志记录器
func NewLoggerFromConfig(cfg *config.LogConfig) (*logrus.Logger, error) {
	out, err := logOutput(cfg)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(logFormatter(cfg.Format))
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	fields := logrus.Fields{"service": serviceName}
	if host, err := os.Hostname(); err == nil {
		fields["host"] = host
	}
	logger.AddHook(staticFields(fields))
	return logger, nil
}

func logFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat: logTimeLayout,
			FieldMap:        logrus.FieldMap{logrus.FieldKeyTime: "time"},
		}
	}
	return &logrus.TextFormatter{TimestampFormat: logTimeLayout, FullTimestamp: true}
}

// logOutput stdout、file 或 both；file 写入 <dir>/services-hub-progress.log
func logOutput(cfg *config.LogConfig) (io.Writer, error) {
	switch cfg.Output {
	case "", "stdout":
		return os.Stdout, nil
	case "file", "both":
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, serviceName+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	if cfg.Output == "file" {
		return f, nil
	}
	return io.MultiWriter(os.Stdout, f), nil
}

// staticFields 给每条日志补上固定字段，调用方显式设置的字段优先
type staticFields logrus.Fields

func (h staticFields) Levels() []logrus.Level { return logrus.AllLevels }

func (h staticFields) Fire(e *logrus.Entry) error {
	for k, v := range h {
		if _, set := e.Data[k]; !set {
			e.Data[k] = v
		}
	}
	return nil
}
