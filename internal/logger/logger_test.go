/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/procmate/procmate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestNew_FileOutput 测试配置文件路径时日志写入轮转文件
func TestNew_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "procmate.log")

	log, err := New(config.LogConfig{Level: "info", File: logFile})
	require.NoError(t, err)

	log.Info("file sink check")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file sink check")
}

// TestNew_StderrDefault 测试未配置文件时回退到 stderr 输出
func TestNew_StderrDefault(t *testing.T) {
	log, err := New(config.LogConfig{Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

// TestNewTraced 测试 otelzap 桥接器可用且保留最低级别
func TestNewTraced(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "procmate.log")

	log, err := New(config.LogConfig{Level: "info", File: logFile})
	require.NoError(t, err)

	traced := NewTraced(log)
	require.NotNil(t, traced)

	// 没有活动 span 时也能照常写日志
	traced.Ctx(context.Background()).Info("traced sink check")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "traced sink check")
}

// TestParseLevel 测试级别字符串映射
func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		t.Run(strings.ToUpper(tc.in), func(t *testing.T) {
			assert.Equal(t, tc.want, parseLevel(tc.in))
		})
	}
}
