package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EarlyLog reports startup failures on stderr before configuration has
// chosen the real logger's level and encoding.
type EarlyLog struct {
	sugar *zap.SugaredLogger
}

func NewEarlyLog() *EarlyLog {
	return newEarlyLog(zapcore.Lock(os.Stderr))
}

func newEarlyLog(out zapcore.WriteSyncer) *EarlyLog {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), out, zapcore.DebugLevel)
	return &EarlyLog{sugar: zap.New(core).Named("startup").Sugar()}
}

func (l *EarlyLog) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(template, args...)
}

func (l *EarlyLog) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(template, args...)
}

// Fatalf logs and exits with status 1.
func (l *EarlyLog) Fatalf(template string, args ...interface{}) {
	l.sugar.Fatalf(template, args...)
}
