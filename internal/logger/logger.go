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

// Package logger builds the zap logger used across Procmate.
// logger 包构建 Procmate 全局使用的 zap 日志器。
package logger

import (
	"os"
	"strings"

	"github.com/procmate/procmate/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a zap logger from the log configuration.
// New 根据日志配置构建 zap 日志器。
//
// When cfg.File is set, output goes to a size-rotated file; otherwise it
// goes to stderr with a console encoder.
// 设置 cfg.File 时输出到按大小轮转的文件；否则以 console 编码输出到 stderr。
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)

	var core zapcore.Core
	if cfg.File != "" {
		// Rotated JSON file output / 轮转的 JSON 文件输出
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		})
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), writer, level)
	} else {
		// Human-readable stderr output / 人类可读的 stderr 输出
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), level)
	}

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// NewTraced wraps the logger so log records carry the active trace context.
// NewTraced 包装日志器，使日志记录携带当前的链路追踪上下文。
func NewTraced(logger *zap.Logger) *otelzap.Logger {
	return otelzap.New(logger, otelzap.WithMinLevel(logger.Level()))
}

// parseLevel maps the configured level string to a zap level.
// parseLevel 将配置的级别字符串映射为 zap 级别。
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
