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

// Package health 提供健康检查接口
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// startTime 进程启动时间，用于计算运行时长
var startTime = time.Now()

// Response 健康检查响应
type Response struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Time   string `json:"time"`
}

// Health 处理 GET /api/v1/health
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/health [get]
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Uptime: time.Since(startTime).Round(time.Second).String(),
		Time:   time.Now().Format(time.RFC3339),
	})
}
