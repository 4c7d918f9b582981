package agent

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"GoMemoryAssistant/pkg/config"
)

var zapLevels = map[config.LogLevel]zapcore.Level{
	config.LevelError:   zapcore.ErrorLevel,
	config.LevelWarning: zapcore.WarnLevel,
	config.LevelInfo:    zapcore.InfoLevel,
	config.LevelDebug:   zapcore.DebugLevel,
}

// NewLogger builds the console logger of the agent. LevelOff disables it.
func NewLogger(level config.LogLevel) (*zap.Logger, zap.AtomicLevel, error) {
	atom := zap.NewAtomicLevel()
	if level == config.LevelOff {
		return zap.NewNop(), atom, nil
	}
	atom.SetLevel(zapLevels[level])

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = atom
	cfg.Development = false
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, atom, err
	}
	return logger.Named("memassist"), atom, nil
}
