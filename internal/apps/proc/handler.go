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

// Package proc provides HTTP handlers for live process control.
// proc 包提供进程实时控制的 HTTP 处理器。
package proc

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/procmate/procmate/internal/process"
	"github.com/procmate/procmate/internal/supervisor"
)

// defaultLogLines is how many log lines are returned when unspecified
// defaultLogLines 是未指定时返回的日志行数
const defaultLogLines = 100

// Handler provides HTTP handlers for process control operations.
// Handler 提供进程控制操作的 HTTP 处理器。
type Handler struct {
	sup *supervisor.Supervisor
}

// NewHandler creates a new Handler instance.
// NewHandler 创建一个新的 Handler 实例。
func NewHandler(sup *supervisor.Supervisor) *Handler {
	return &Handler{sup: sup}
}

// ==================== Request/Response Types 请求/响应类型 ====================

// ProcessListResponse represents the response for listing processes.
// ProcessListResponse 表示获取进程列表的响应。
type ProcessListResponse struct {
	ErrorMsg string `json:"error_msg"`
	Data     *struct {
		Total     int                    `json:"total"`
		Processes []*process.ProcessInfo `json:"processes"`
	} `json:"data"`
}

// ProcessResponse represents the response for a single process.
// ProcessResponse 表示单个进程的响应。
type ProcessResponse struct {
	ErrorMsg string               `json:"error_msg"`
	Data     *process.ProcessInfo `json:"data"`
}

// ActionResponse represents the response for a control action.
// ActionResponse 表示控制操作的响应。
type ActionResponse struct {
	ErrorMsg string `json:"error_msg"`
	Data     *struct {
		Process string `json:"process"`
		Action  string `json:"action"`
	} `json:"data"`
}

// ScaleRequest represents the request to scale a process type.
// ScaleRequest 表示调整进程类型实例数的请求。
type ScaleRequest struct {
	Count *int `json:"count" binding:"required"`
}

// ScaleResponse represents the response for a scale operation.
// ScaleResponse 表示扩缩容操作的响应。
type ScaleResponse struct {
	ErrorMsg string `json:"error_msg"`
	Data     *struct {
		Type  string `json:"type"`
		Count int    `json:"count"`
	} `json:"data"`
}

// LogsRequest represents the request for process logs.
// LogsRequest 表示获取进程日志的请求。
type LogsRequest struct {
	Lines  int  `json:"lines" form:"lines" binding:"omitempty,min=1,max=10000"`
	Follow bool `json:"follow" form:"follow"`
}

// LogsResponse represents the response for process logs.
// LogsResponse 表示进程日志的响应。
type LogsResponse struct {
	ErrorMsg string `json:"error_msg"`
	Data     *struct {
		Process string `json:"process"`
		Logs    string `json:"logs"`
	} `json:"data"`
}

// ManifestResponse represents the response for the loaded manifest.
// ManifestResponse 表示已加载清单的响应。
type ManifestResponse struct {
	ErrorMsg string `json:"error_msg"`
	Data     *struct {
		Types     []string               `json:"types"`
		Instances []*supervisor.Instance `json:"instances"`
	} `json:"data"`
}

// ==================== Process Handlers 进程处理器 ====================

// ListProcesses handles GET /api/v1/processes - lists all instances with live status.
// ListProcesses 处理 GET /api/v1/processes - 获取所有实例及实时状态。
// @Tags proc
// @Produce json
// @Success 200 {object} ProcessListResponse
// @Router /api/v1/processes [get]
func (h *Handler) ListProcesses(c *gin.Context) {
	processes := h.sup.List()
	c.JSON(http.StatusOK, ProcessListResponse{
		Data: &struct {
			Total     int                    `json:"total"`
			Processes []*process.ProcessInfo `json:"processes"`
		}{
			Total:     len(processes),
			Processes: processes,
		},
	})
}

// GetProcess handles GET /api/v1/processes/:name - gets one instance's live status.
// GetProcess 处理 GET /api/v1/processes/:name - 获取单个实例的实时状态。
// @Tags proc
// @Produce json
// @Param name path string true "实例名称"
// @Success 200 {object} ProcessResponse
// @Router /api/v1/processes/{name} [get]
func (h *Handler) GetProcess(c *gin.Context) {
	info, err := h.sup.Status(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(h.getStatusCodeForError(err), ProcessResponse{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ProcessResponse{Data: info})
}

// StartProcess handles POST /api/v1/processes/:name/start.
// StartProcess 处理 POST /api/v1/processes/:name/start。
// @Tags proc
// @Produce json
// @Param name path string true "实例名称"
// @Success 200 {object} ActionResponse
// @Router /api/v1/processes/{name}/start [post]
func (h *Handler) StartProcess(c *gin.Context) {
	h.action(c, "start", h.sup.StartInstance)
}

// StopProcess handles POST /api/v1/processes/:name/stop.
// StopProcess 处理 POST /api/v1/processes/:name/stop。
// @Tags proc
// @Produce json
// @Param name path string true "实例名称"
// @Success 200 {object} ActionResponse
// @Router /api/v1/processes/{name}/stop [post]
func (h *Handler) StopProcess(c *gin.Context) {
	h.action(c, "stop", h.sup.StopInstance)
}

// RestartProcess handles POST /api/v1/processes/:name/restart.
// RestartProcess 处理 POST /api/v1/processes/:name/restart。
// @Tags proc
// @Produce json
// @Param name path string true "实例名称"
// @Success 200 {object} ActionResponse
// @Router /api/v1/processes/{name}/restart [post]
func (h *Handler) RestartProcess(c *gin.Context) {
	h.action(c, "restart", h.sup.RestartInstance)
}

// Scale handles POST /api/v1/processes/:name/scale - changes the instance
// count of a process type. The path parameter names the TYPE ("web"),
// not an instance ("web.1").
// Scale 处理 POST /api/v1/processes/:name/scale - 更改进程类型的实例数。
// 路径参数是类型名（"web"），不是实例名（"web.1"）。
// @Tags proc
// @Produce json
// @Param name path string true "进程类型"
// @Param request body ScaleRequest true "目标实例数"
// @Success 200 {object} ScaleResponse
// @Router /api/v1/processes/{name}/scale [post]
func (h *Handler) Scale(c *gin.Context) {
	var req ScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ScaleResponse{ErrorMsg: err.Error()})
		return
	}

	procType := c.Param("name")
	if err := h.sup.Scale(c.Request.Context(), procType, *req.Count); err != nil {
		c.JSON(h.getStatusCodeForError(err), ScaleResponse{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ScaleResponse{
		Data: &struct {
			Type  string `json:"type"`
			Count int    `json:"count"`
		}{
			Type:  procType,
			Count: *req.Count,
		},
	})
}

// GetLogs handles GET /api/v1/processes/:name/logs - returns recent output,
// or streams new lines as SSE when follow=true.
// GetLogs 处理 GET /api/v1/processes/:name/logs - 返回最近的输出；
// follow=true 时以 SSE 流式返回新行。
// @Tags proc
// @Param lines query int false "返回行数（默认 100）"
// @Param follow query bool false "持续跟踪输出"
// @Produce json
// @Success 200 {object} LogsResponse
// @Router /api/v1/processes/{name}/logs [get]
func (h *Handler) GetLogs(c *gin.Context) {
	req := LogsRequest{Lines: defaultLogLines}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, LogsResponse{ErrorMsg: err.Error()})
		return
	}
	if req.Lines <= 0 {
		req.Lines = defaultLogLines
	}

	name := c.Param("name")
	if req.Follow {
		h.followLogs(c, name)
		return
	}
	logs, err := h.sup.Logs(c.Request.Context(), name, req.Lines)
	if err != nil {
		c.JSON(h.getStatusCodeForError(err), LogsResponse{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, LogsResponse{
		Data: &struct {
			Process string `json:"process"`
			Logs    string `json:"logs"`
		}{
			Process: name,
			Logs:    logs,
		},
	})
}

// followLogs streams an instance's output as server-sent events until the
// client disconnects.
// followLogs 以服务器推送事件流式返回实例输出，直到客户端断开连接。
func (h *Handler) followLogs(c *gin.Context, name string) {
	lines, err := h.sup.FollowLogs(c.Request.Context(), name)
	if err != nil {
		c.JSON(h.getStatusCodeForError(err), LogsResponse{ErrorMsg: err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)

	// The channel closes when the request context is cancelled, which is
	// how a client disconnect surfaces here.
	// 请求上下文取消时通道关闭，客户端断开连接即以此方式体现。
	for line := range lines {
		c.SSEvent("log", line)
		c.Writer.Flush()
	}
}

// GetManifest handles GET /api/v1/manifest - returns the loaded manifest
// and its expanded instance slots.
// GetManifest 处理 GET /api/v1/manifest - 返回已加载的清单及其展开的实例槽位。
// @Tags proc
// @Produce json
// @Success 200 {object} ManifestResponse
// @Router /api/v1/manifest [get]
func (h *Handler) GetManifest(c *gin.Context) {
	manifest := h.sup.Manifest()
	c.JSON(http.StatusOK, ManifestResponse{
		Data: &struct {
			Types     []string               `json:"types"`
			Instances []*supervisor.Instance `json:"instances"`
		}{
			Types:     manifest.Names(),
			Instances: h.sup.Instances(),
		},
	})
}

// Reload handles POST /api/v1/reload - re-reads the Procfile and env file
// and reconciles running instances.
// Reload 处理 POST /api/v1/reload - 重新读取 Procfile 和 env 文件
// 并调和运行中的实例。
// @Tags proc
// @Produce json
// @Success 200 {object} ActionResponse
// @Router /api/v1/reload [post]
func (h *Handler) Reload(c *gin.Context) {
	if err := h.sup.Reload(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, ActionResponse{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ActionResponse{
		Data: &struct {
			Process string `json:"process"`
			Action  string `json:"action"`
		}{
			Process: "*",
			Action:  "reload",
		},
	})
}

// ==================== Helper Methods 辅助方法 ====================

// action runs a per-instance control operation and writes the envelope.
// action 执行单实例控制操作并写入响应信封。
func (h *Handler) action(c *gin.Context, name string, fn func(ctx context.Context, instance string) error) {
	instance := c.Param("name")
	if err := fn(c.Request.Context(), instance); err != nil {
		c.JSON(h.getStatusCodeForError(err), ActionResponse{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ActionResponse{
		Data: &struct {
			Process string `json:"process"`
			Action  string `json:"action"`
		}{
			Process: instance,
			Action:  name,
		},
	})
}

// getStatusCodeForError returns the appropriate HTTP status code for an error.
// getStatusCodeForError 根据错误返回适当的 HTTP 状态码。
func (h *Handler) getStatusCodeForError(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrInstanceNotFound),
		errors.Is(err, supervisor.ErrUnknownProcessType),
		errors.Is(err, process.ErrProcessNotFound):
		return http.StatusNotFound
	case errors.Is(err, process.ErrProcessAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, process.ErrProcessNotRunning):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrInvalidFormation),
		errors.Is(err, process.ErrEmptyCommand):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
