package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the CLI logger: console output on stderr (Debug when
// verbose, Warn otherwise) plus an append-only JSON file sink at Info
// under dir/log/sync.log. The returned func flushes buffered entries.
func New(dir string, verbose bool) (*zap.SugaredLogger, func()) {
	consoleLevel := zapcore.WarnLevel
	if verbose {
		consoleLevel = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), consoleLevel),
	}

	// A broken file sink degrades to console-only logging.
	logDir := filepath.Join(dir, "log")
	if err := os.MkdirAll(logDir, 0o755); err == nil {
		f, err := os.OpenFile(filepath.Join(logDir, "sync.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			fileCfg := zap.NewProductionEncoderConfig()
			fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), zapcore.InfoLevel))
		}
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger.Sugar(), func() { _ = logger.Sync() }
}
