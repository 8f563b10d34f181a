// Package logging constructs the kernel's zap.Logger, following the
// teacher's main.go development-console configuration.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a colorized, caller-free development logger in dev mode, or
// a production JSON logger otherwise.
func New(production bool) *zap.Logger {
	if production {
		log, err := zap.NewProduction()
		if err != nil {
			panic("logging: build production logger: " + err.Error())
		}
		return log
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	log := zap.Must(cfg.Build())
	return log
}
