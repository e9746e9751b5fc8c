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

// Package auth 提供控制 API 的 Bearer 令牌认证中间件
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/procmate/procmate/internal/config"
	"github.com/procmate/procmate/internal/otel_trace"
	"golang.org/x/crypto/bcrypt"
)

// 错误响应
type ErrorResponse struct {
	ErrorMsg string      `json:"error_msg"`
	Data     interface{} `json:"data"`
}

// TokenRequired Bearer 令牌验证中间件
// 配置了 token_hash 时优先使用 bcrypt 哈希比对；
// 否则对明文 token 使用常量时间比较。
// 两者都未配置时认证被禁用，所有请求直接放行。
func TokenRequired(cfg config.APIConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 初始化追踪
		_, span := otel_trace.Start(c.Request.Context(), "TokenRequired")
		defer span.End()

		// 未配置令牌时跳过认证
		if cfg.Token == "" && cfg.TokenHash == "" {
			c.Next()
			return
		}

		token, ok := extractBearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				ErrorMsg: "缺少 Bearer 令牌 / missing bearer token",
				Data:     nil,
			})
			return
		}

		if !verifyToken(cfg, token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				ErrorMsg: "令牌无效 / invalid token",
				Data:     nil,
			})
			return
		}

		// 继续处理请求
		c.Next()
	}
}

// extractBearerToken 从 Authorization 头提取令牌
func extractBearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// verifyToken 校验令牌是否有效
func verifyToken(cfg config.APIConfig, token string) bool {
	if cfg.TokenHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(cfg.TokenHash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(cfg.Token), []byte(token)) == 1
}

// HashToken 生成令牌的 bcrypt 哈希，用于写入配置的 token_hash
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
