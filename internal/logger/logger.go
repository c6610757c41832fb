package logger

import (
	"strings"

	"go.uber.org/zap"
)

var log = zap.NewNop().Sugar()

// Init installs a development logger. Until it is called every helper is a no-op.
func Init() {
	InitWithFormat("console", "debug")
}

// InitWithFormat picks the zap preset by format ("json" -> production) and sets the level.
func InitWithFormat(format, level string) {
	cfg := zap.NewDevelopmentConfig()
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	log = l.Sugar()
}

func Debug(msg string, kv ...interface{}) {
	log.Debugw(msg, kv...)
}

func Info(msg string, kv ...interface{}) {
	log.Infow(msg, kv...)
}

func Warn(msg string, kv ...interface{}) {
	log.Warnw(msg, kv...)
}

func Error(msg string, kv ...interface{}) {
	log.Errorw(msg, kv...)
}

func Sync() {
	_ = log.Sync()
}
