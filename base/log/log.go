// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"net/url"
	"os"
	"runtime"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger

func init() {
	// setup default logger
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	// Windows file sink support: https://github.com/uber-go/zap/issues/621
	if runtime.GOOS == "windows" {
		if err := zap.RegisterSink("windows", func(u *url.URL) (zap.Sink, error) {
			// Remove leading slash left by url.Parse()
			return os.OpenFile(u.Path[1:], os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		}); err != nil {
			logger.Fatal("failed to register Windows file sink", zap.Error(err))
		}
	}
}

// Logger get current logger
func Logger() *zap.Logger {
	return logger
}

// SetLogger replaces the current logger.
func SetLogger(l *zap.Logger) {
	logger = l
}

// SetProductionLogger sets a production logger. If rotated log files are
// requested, logs are written through lumberjack.
func SetProductionLogger(rotate bool, paths ...string) {
	cfg := zap.NewProductionConfig()
	if rotate {
		cores := make([]zapcore.Core, 0, len(paths))
		encoder := zapcore.NewJSONEncoder(cfg.EncoderConfig)
		for _, path := range paths {
			writer := &lumberjack.Logger{
				Filename:   path,
				MaxSize:    100, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			}
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), cfg.Level))
		}
		logger = zap.New(zapcore.NewTee(cores...))
		return
	}
	cfg.OutputPaths = paths
	var err error
	logger, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}

// CloseLogger disables all log output except fatal errors.
func CloseLogger() {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.FatalLevel)
	var err error
	logger, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}
