package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap logger tagged with the service name. Debug
// level is opt-in via config so the admission path stays quiet by default.
func New(service string, debug bool) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	lg, err := cfg.Build()
	if err != nil {
		// Build падает только при кривой конфигурации энкодера
		panic(err)
	}
	return lg.Sugar().With("service", service)
}

// Nop is used by unit tests that don't care about log output.
func Nop() *zap.SugaredLogger { return zap.NewNop().Sugar() }
