// Package logging builds the zap loggers used across storekit.
package logging

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// shortTime encodes time as HH:MM:SS for console output.
func shortTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}

// New creates a logger writing to stderr. json selects the JSON encoder;
// otherwise output is human-readable console lines. level is one of
// debug, info, warn or error; empty means info.
func New(json bool, level string) (*zap.Logger, error) {
	return build(zapcore.Lock(os.Stderr), json, level)
}

func build(w zapcore.WriteSyncer, json bool, level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zapcore.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	econf := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	var enc zapcore.Encoder
	if json {
		enc = zapcore.NewJSONEncoder(econf)
	} else {
		econf.EncodeTime = shortTime
		econf.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(econf)
	}
	return zap.New(zapcore.NewCore(enc, w, lvl)), nil
}
