package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Verbose bool
	JSON    bool
}

func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	if !opts.JSON {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = ""
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeCaller = nil
	}

	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = !opts.Verbose

	if opts.JSON {
		cfg.Encoding = "json"
	} else {
		cfg.Encoding = "console"
	}

	return cfg.Build()
}

// LineFunc receives one rendered log line per entry.
type LineFunc func(level, message string)

// WithLineSink tees every entry written through logger into fn. The web UI
// uses this to mirror server logs into the debug sidebar without touching
// the stderr output.
func WithLineSink(logger *zap.Logger, fn LineFunc) *zap.Logger {
	if logger == nil || fn == nil {
		return logger
	}

	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, &sinkCore{fn: fn, enab: core})
	}))
}

type sinkCore struct {
	fn     LineFunc
	enab   zapcore.LevelEnabler
	fields []zapcore.Field
}

func (c *sinkCore) Enabled(level zapcore.Level) bool {
	return c.enab.Enabled(level)
}

func (c *sinkCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &sinkCore{fn: c.fn, enab: c.enab}
	clone.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return clone
}

func (c *sinkCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *sinkCore) Write(entry zapcore.Entry, _ []zapcore.Field) error {
	c.fn(entry.Level.String(), entry.Message)
	return nil
}

func (c *sinkCore) Sync() error { return nil }
