package logging

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Config selects level, encoding and destination of the process logger.
type Config struct {
	Level      string `json:"level"`
	Encoding   string `json:"encoding"` // json | console
	OutputPath string `json:"output_path"`
	// QueueSize is the capacity of each hot-path Logger ring. Power of two.
	QueueSize int `json:"queue_size"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Encoding:   "console",
		OutputPath: "stderr",
		QueueSize:  1 << 16,
	}
}

// NewZap builds the process logger from cfg.
func NewZap(cfg Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "logging: level %q", cfg.Level)
	}

	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.Sampling = nil
	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}
	if cfg.Encoding == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if cfg.OutputPath != "" {
		zc.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "logging: build zap logger")
	}
	return logger, nil
}
