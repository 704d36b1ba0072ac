// Package logger builds the zap logger shared by the server, the services
// and the background workers.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger when env is "prod" or
// "production" and a human-readable development logger otherwise.
func New(env string) (*zap.Logger, error) {
	switch strings.ToLower(env) {
	case "prod", "production":
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	case "test":
		return zap.NewNop(), nil
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
}

// Must is New that panics on error.  It is meant for main.
func Must(env string) *zap.Logger {
	l, err := New(env)
	if err != nil {
		panic(err)
	}
	return l
}
