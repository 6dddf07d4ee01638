/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging builds the zap.Config used across the supervisor,
// following sigs.k8s.io/karpenter/pkg/operator/logging's DefaultZapConfig.
package logging

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cardano-forge/forgeguard/internal/buildinfo"
)

const (
	Unknown = "unknown"
	Commit  = "commit"
)

// NopLogger discards everything; used in tests that don't care about logs.
var NopLogger = zap.NewNop()

func DefaultZapConfig(logLevel, outputPaths, errorOutputPaths string) zap.Config {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if logLevel != "" {
		level = lo.Must(zap.ParseAtomicLevel(logLevel))
	}
	if outputPaths == "" {
		outputPaths = "stdout"
	}
	if errorOutputPaths == "" {
		errorOutputPaths = "stderr"
	}
	return zap.Config{
		Level:             level,
		Development:       false,
		DisableCaller:     logLevel != "debug",
		DisableStacktrace: true,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			LevelKey:       "level",
			TimeKey:        "time",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      strings.Split(outputPaths, ","),
		ErrorOutputPaths: strings.Split(errorOutputPaths, ","),
	}
}

// NewLogger returns a *zap.Logger named component, enriched with the
// binary's VCS revision.
func NewLogger(_ context.Context, component, logLevel, outputPaths, errorOutputPaths string) *zap.Logger {
	logger := lo.Must(DefaultZapConfig(logLevel, outputPaths, errorOutputPaths).Build())
	return WithCommit(logger).Named(component)
}

func WithCommit(logger *zap.Logger) *zap.Logger {
	revision := buildinfo.Revision()
	if revision == buildinfo.Unknown {
		logger.Info("unable to read vcs.revision from binary")
		return logger
	}
	return logger.With(zap.String(Commit, revision))
}
