// common/logger/zap_config.go
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Пулинг пишет по строке на кадр: в prod повторяющиеся сообщения
// пропускаются через сэмплер (первые 10 в секунду, затем каждое 100-е).
var prodSampling = zap.SamplingConfig{Initial: 10, Thereafter: 100}

func parseLevel(level string) (zap.AtomicLevel, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("logger: invalid level %q: %w", level, err)
	}
	return lvl, nil
}

func encoderConfig(dev bool) zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	if dev {
		ec = zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.CallerKey = "caller"
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	ec.StacktraceKey = "stacktrace"
	return ec
}

func buildZapConfig(cfg Config) (zap.Config, error) {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, err
	}

	zc := zap.NewProductionConfig()
	if cfg.DevMode {
		zc = zap.NewDevelopmentConfig()
		zc.Sampling = nil
	} else {
		s := prodSampling
		zc.Sampling = &s
	}
	zc.Level = lvl
	zc.EncoderConfig = encoderConfig(cfg.DevMode)
	return zc, nil
}
