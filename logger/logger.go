/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package logger

import (
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	middleware "github.com/go-chi/chi/v5/middleware"
	lc "github.com/redhatinsights/platform-go-middlewares/v2/logging/cloudwatch"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/redhatinsights/deid-export-go/config"
)

// Log is a global variable that carries the Sugared logger
var Log *zap.SugaredLogger

var cfg = config.Get()

func init() {
	Get()
}

func Get() *zap.SugaredLogger {
	if Log == nil {
		tmpLogger := zap.NewExample()
		loggerConfig := zap.NewProductionConfig()
		loggerConfig.EncoderConfig.TimeKey = "@timestamp"
		loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.9999Z")

		consoleOutput := zapcore.Lock(os.Stdout)
		consoleEncoder := zapcore.NewJSONEncoder(loggerConfig.EncoderConfig)
		if cfg.Debug {
			// use color and non-JSON logging in DEBUG mode
			loggerConfig.Development = true
			loggerConfig.EncoderConfig.EncodeLevel = zapcore.LowercaseColorLevelEncoder
			consoleEncoder = zapcore.NewConsoleEncoder(loggerConfig.EncoderConfig)
		}

		var level zapcore.Level
		switch cfg.LogLevel {
		case "DEBUG":
			level = zapcore.DebugLevel
		case "WARN":
			level = zapcore.WarnLevel
		case "ERROR":
			level = zapcore.ErrorLevel
		default:
			level = zapcore.InfoLevel
		}
		loggerConfig.Level = zap.NewAtomicLevelAt(level)

		fn := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= level })
		core := zapcore.NewTee(zapcore.NewCore(consoleEncoder, consoleOutput, fn))

		// configure cloudwatch
		if cfg.Logging != nil && cfg.Logging.Region != "" {
			cred := credentials.NewStaticCredentials(cfg.Logging.AccessKeyID, cfg.Logging.SecretAccessKey, "")
			awsconf := aws.NewConfig().WithRegion(cfg.Logging.Region).WithCredentials(cred)
			batchLogWriter, err := lc.NewBatchWriterWithDuration(cfg.Logging.LogGroup, cfg.Hostname, awsconf, 10*time.Second)
			if err != nil {
				tmpLogger.Info(err.Error())
			}
			hook := zapcore.AddSync(batchLogWriter)
			core = zapcore.NewTee(
				zapcore.NewCore(consoleEncoder, consoleOutput, fn),
				zapcore.NewCore(consoleEncoder, hook, fn),
			)
		}

		logger, err := loggerConfig.Build(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))
		if err != nil {
			tmpLogger.Info(err.Error())
		}

		Log = logger.Sugar()
		Log.Debugf("log level set to %s", cfg.LogLevel)
	}
	return Log
}

// ResponseLogger is a middleware that logs each metrics server response
// with the global logger.
func ResponseLogger(next http.Handler) http.Handler {
	return SetResponseLogger(Log)(next)
}

// SetResponseLogger is a middleware helper that accepts a configured zap.SugaredLogger
// and logs response information for each request.
func SetResponseLogger(l *zap.SugaredLogger) func(next http.Handler) http.Handler {
	fn1 := func(next http.Handler) http.Handler {
		fn2 := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()
			defer func() {
				l.Debugw("",
					"protocol", r.Proto,
					"request", r.Method,
					"path", r.URL.Path,
					"latency", time.Since(t1),
					"status", ww.Status(),
					"size", ww.BytesWritten(),
					"user-agent", r.UserAgent(),
				)
			}()
			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn2)
	}
	return fn1
}

func RunIDField(runID string) zap.Field {
	return zap.String("run_id", runID)
}

func ContainerIDField(containerID string) zap.Field {
	return zap.String("container_id", containerID)
}

func FilenameField(filename string) zap.Field {
	return zap.String("filename", filename)
}
