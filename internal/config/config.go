package config

import (
	"go.uber.org/zap"
)

var Logger *zap.Logger

// InitLogger builds the process logger. mode "production" gives JSON output,
// anything else the development console encoder.
func InitLogger(mode string) error {
	var err error
	if mode == "production" {
		Logger, err = zap.NewProduction()
	} else {
		Logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return err
	}

	Logger.Info("✅ Zap logger initialized", zap.String("mode", mode))
	return nil
}

// SyncLogger flushes buffered entries. Safe to call before InitLogger.
func SyncLogger() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
