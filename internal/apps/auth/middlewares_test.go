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

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/procmate/procmate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRouter 构建带令牌中间件的测试路由
func newTestRouter(cfg config.APIConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TokenRequired(cfg))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func doRequest(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenRequired_Disabled(t *testing.T) {
	// 未配置令牌时认证被禁用
	r := newTestRouter(config.APIConfig{})
	w := doRequest(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTokenRequired_PlainToken(t *testing.T) {
	r := newTestRouter(config.APIConfig{Token: "secret-token"})

	t.Run("正确令牌放行", func(t *testing.T) {
		w := doRequest(r, "Bearer secret-token")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("错误令牌拒绝", func(t *testing.T) {
		w := doRequest(r, "Bearer wrong-token")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("缺少令牌拒绝", func(t *testing.T) {
		w := doRequest(r, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("非 Bearer 格式拒绝", func(t *testing.T) {
		w := doRequest(r, "Basic secret-token")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestTokenRequired_HashedToken(t *testing.T) {
	hash, err := HashToken("secret-token")
	require.NoError(t, err)

	r := newTestRouter(config.APIConfig{TokenHash: hash})

	t.Run("正确令牌放行", func(t *testing.T) {
		w := doRequest(r, "Bearer secret-token")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("错误令牌拒绝", func(t *testing.T) {
		w := doRequest(r, "Bearer other-token")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestTokenRequired_HashPreferredOverPlain(t *testing.T) {
	// 同时配置时哈希优先，明文 token 不生效
	hash, err := HashToken("hashed-token")
	require.NoError(t, err)

	r := newTestRouter(config.APIConfig{Token: "plain-token", TokenHash: hash})

	w := doRequest(r, "Bearer hashed-token")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, "Bearer plain-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHashToken_RoundTrip(t *testing.T) {
	hash, err := HashToken("abc123")
	require.NoError(t, err)
	assert.NotEqual(t, "abc123", hash)
	assert.True(t, verifyToken(config.APIConfig{TokenHash: hash}, "abc123"))
	assert.False(t, verifyToken(config.APIConfig{TokenHash: hash}, "abc124"))
}
