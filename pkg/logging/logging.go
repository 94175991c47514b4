// Package logging wraps zap behind a small gated Sink, the way
// MrSnakeDoc-keg/internal/logger wraps it: a package of leveled helpers
// that no-op unless verbosity is enabled, so the rest of the module never
// imports zap directly (spec.md §7: "verbose mode prints all transitions;
// silent mode produces no output").
package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink is the logging surface every component depends on.
type Sink interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// New builds a Sink. When verbose is false the underlying core is a zap
// no-op core so every call is a no-op without the caller having to guard
// each call site.
func New(verbose bool, out io.Writer) Sink {
	if out == nil {
		out = os.Stdout
	}
	if !verbose {
		return &sugarSink{logger: zap.New(zapcore.NewNopCore()).Sugar()}
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "msg"
	enc := zapcore.NewConsoleEncoder(encCfg)
	core := zapcore.NewCore(enc, zapcore.AddSync(out), zapcore.DebugLevel)
	return &sugarSink{logger: zap.New(core).Sugar()}
}

// Noop returns a Sink that discards everything, used as the default when
// no Sink is configured.
func Noop() Sink { return New(false, io.Discard) }

type sugarSink struct {
	mu     sync.Mutex
	logger *zap.SugaredLogger
}

func (s *sugarSink) Debugf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debugf(format, args...)
}

func (s *sugarSink) Infof(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Infof(format, args...)
}

func (s *sugarSink) Warnf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Warnf(format, args...)
}

func (s *sugarSink) Errorf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Errorf(format, args...)
}
