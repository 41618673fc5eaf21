// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	require := require.New(t)

	require.Equal(zapcore.DebugLevel, ParseLevel("debug"))
	require.Equal(zapcore.WarnLevel, ParseLevel("warn"))
	require.Equal(zapcore.ErrorLevel, ParseLevel("error"))
	require.Equal(zapcore.InfoLevel, ParseLevel("info"))
	require.Equal(zapcore.InfoLevel, ParseLevel("bogus"))

	// Names from config files and flags are matched without regard to case
	require.Equal(zapcore.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(zapcore.WarnLevel, ParseLevel(" Warn "))

	_, ok := LookupLevel("loud")
	require.False(ok)
	l, ok := LookupLevel("Error")
	require.True(ok)
	require.Equal(zapcore.ErrorLevel, l)
}

func TestNewWithLevelIgnoresCase(t *testing.T) {
	logger := NewWithLevel("DEBUG")
	zl, ok := logger.(*zapLogger)
	require.True(t, ok)
	require.True(t, zl.log.Core().Enabled(zapcore.DebugLevel))
}

func TestFromZapCarriesFields(t *testing.T) {
	require := require.New(t)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core)).Named("importer").With(String("node", "demand-1"))

	logger.Warn("campaign save failed", Int("index", 2), Error(errors.New("boom")))

	entries := logs.All()
	require.Len(entries, 1)
	require.Equal("importer", entries[0].LoggerName)
	require.Equal("campaign save failed", entries[0].Message)

	fields := entries[0].ContextMap()
	require.Equal("demand-1", fields["node"])
	require.EqualValues(2, fields["index"])
	require.Equal("boom", fields["error"])
}

func TestNoOpLogger(t *testing.T) {
	require := require.New(t)

	logger := NoOp().With(String("a", "b")).Named("x")
	logger.Info("ignored")
	require.NoError(logger.Sync())
	require.NotNil(FromZap(nil))
}
