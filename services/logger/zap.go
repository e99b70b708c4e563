package logsvc

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/user"
)

// ZapLogger is a structured core.Logger.
type ZapLogger struct {
	zl *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

// NewZapLogger builds a zap logger from the log config: "console" is human readable, anything else is JSON.
func NewZapLogger(conf core.LogConfig) (*ZapLogger, error) {
	var zapConf zap.Config
	switch conf.Format {
	case "console":
		zapConf = zap.NewDevelopmentConfig()
		zapConf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		zapConf = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(conf.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", conf.Level)
	}
	zapConf.Level = zap.NewAtomicLevelAt(level)

	zl, err := zapConf.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return &ZapLogger{zl: zl}, nil
}

func NewZapLoggerFrom(zl *zap.Logger) *ZapLogger {
	return &ZapLogger{zl: zl}
}

// Zap returns the underlying zap logger.
func (l *ZapLogger) Zap() *zap.Logger {
	return l.zl
}

func (l *ZapLogger) Sync() error {
	return l.zl.Sync()
}

// fields turns the loose logger args into zap fields.
// expected fmt: error, map[string]interface{}, user.User
func fields(args []interface{}) []zap.Field {
	flds := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case error:
			flds = append(flds, zap.Error(v))
		case map[string]interface{}:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				flds = append(flds, zap.Any(k, v[k]))
			}
		case user.User:
			flds = append(flds, zap.String("user_id", v.ID), zap.String("username", v.Username))
		default:
			flds = append(flds, zap.Any(fmt.Sprintf("arg%d", i), v))
		}
	}
	return flds
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) {
	l.zl.Debug(msg, fields(args)...)
}

func (l *ZapLogger) Info(msg string, args ...interface{}) {
	l.zl.Info(msg, fields(args)...)
}

func (l *ZapLogger) Warn(msg string, args ...interface{}) {
	l.zl.Warn(msg, fields(args)...)
}

func (l *ZapLogger) Error(msg string, args ...interface{}) {
	l.zl.Error(msg, fields(args)...)
}

func (l *ZapLogger) Fatal(msg string, args ...interface{}) {
	l.zl.Fatal(msg, fields(args)...)
}
